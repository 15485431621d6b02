package config

import (
	"sync"
	"time"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

// ServerConfig holds the HTTP server and logging settings.
type ServerConfig struct {
	Port            string
	APIKey          string
	MaxFileSize     int64
	ShutdownTimeout time.Duration
	Log             LogConfig
}

type LogConfig struct {
	Level       string
	Encoding    string
	Development bool
	OutputPaths []string
	ErrorPaths  []string
}

// Addr is the listen address for http.Server.
func (c *ServerConfig) Addr() string {
	return ":" + c.Port
}

// AuthEnabled reports whether requests must carry the API key.
func (c *ServerConfig) AuthEnabled() bool {
	return c.APIKey != ""
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		serverConfig = loadServerConfig(getFileConfig())
	})
	return serverConfig
}

func loadServerConfig(fc *FileConfig) *ServerConfig {
	shutdown := 5 * time.Second
	if d, err := time.ParseDuration(fc.Server.ShutdownTimeout); err == nil && d > 0 {
		shutdown = d
	}
	maxSize := int64(50 * 1024 * 1024) // 50MB
	if fc.Server.MaxFileSize > 0 {
		maxSize = fc.Server.MaxFileSize
	}
	outputs := []string{"stdout", "logs/app.log"}
	if len(fc.Log.OutputPaths) > 0 {
		outputs = fc.Log.OutputPaths
	}
	errOutputs := []string{"stderr"}
	if len(fc.Log.ErrorOutputPaths) > 0 {
		errOutputs = fc.Log.ErrorOutputPaths
	}

	return &ServerConfig{
		Port:            getEnv("PORT", orDefault(fc.Server.Port, "8080")),
		APIKey:          getEnv("API_KEY", ""),
		MaxFileSize:     getEnvInt64("MAX_FILE_SIZE", maxSize),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", shutdown),
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", orDefault(fc.Log.Level, "info")),
			Encoding:    getEnv("LOG_ENCODING", orDefault(fc.Log.Encoding, "json")),
			Development: getEnvBool("LOG_DEVELOPMENT", fc.Log.Development),
			OutputPaths: getEnvList("LOG_OUTPUT", outputs),
			ErrorPaths:  getEnvList("LOG_ERROR_OUTPUT", errOutputs),
		},
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
