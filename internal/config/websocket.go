package config

type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

func loadWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		Enabled: getEnvAsBool("WEBSOCKET_ENABLED", true),
	}
}
