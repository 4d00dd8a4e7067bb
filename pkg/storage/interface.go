package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("storage: object not found")

// Provider is the blob store settlement reports are archived to.
type Provider interface {
	Upload(ctx context.Context, request *UploadRequest) (*ObjectInfo, error)
	Download(ctx context.Context, key string) (*DownloadResponse, error)
	ListFiles(ctx context.Context, prefix string) ([]*ObjectInfo, error)
}

type UploadRequest struct {
	Key         string
	Reader      io.Reader
	ContentType string
	Size        int64
	Metadata    map[string]string
}

type DownloadResponse struct {
	Reader       io.ReadCloser
	Size         int64
	ContentType  string
	LastModified time.Time
}

type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
