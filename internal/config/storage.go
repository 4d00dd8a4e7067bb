package config

import "fmt"

// StorageConfig selects where settlement run reports are archived.
// Provider "none" disables archiving.
type StorageConfig struct {
	Provider string              `yaml:"provider"`
	Prefix   string              `yaml:"prefix"`
	Local    *LocalStorageConfig `yaml:"local"`
	AWS      *AWSStorageConfig   `yaml:"aws"`
	GCP      *GCPStorageConfig   `yaml:"gcp"`
}

type LocalStorageConfig struct {
	BasePath string `yaml:"base_path"`
}

type AWSStorageConfig struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`
}

type GCPStorageConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		Provider: getEnv("STORAGE_PROVIDER", "local"),
		Prefix:   getEnv("STORAGE_REPORT_PREFIX", "settlements"),
		Local: &LocalStorageConfig{
			BasePath: getEnv("STORAGE_LOCAL_PATH", "./data/reports"),
		},
		AWS: &AWSStorageConfig{
			Region: getEnv("AWS_S3_REGION", "us-east-1"),
			Bucket: getEnv("AWS_S3_BUCKET", ""),
		},
		GCP: &GCPStorageConfig{
			Bucket:          getEnv("GCP_STORAGE_BUCKET", ""),
			CredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),
		},
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Provider {
	case "none", "local":
	case "s3":
		if c.AWS.Bucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required for the s3 provider")
		}
	case "gcs":
		if c.GCP.Bucket == "" {
			return fmt.Errorf("GCP_STORAGE_BUCKET is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Provider)
	}
	return nil
}
