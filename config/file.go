package config

import (
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML file named by CONFIG_FILE. Its values are
// defaults; environment variables override them.
type FileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		MaxFileSize     int64  `yaml:"maxFileSize"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Log struct {
		Level            string   `yaml:"level"`
		Encoding         string   `yaml:"encoding"`
		Development      bool     `yaml:"development"`
		OutputPaths      []string `yaml:"outputPaths"`
		ErrorOutputPaths []string `yaml:"errorOutputPaths"`
	} `yaml:"log"`
	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`
	Storage struct {
		Type string `yaml:"type"`
	} `yaml:"storage"`
	OCR struct {
		Backend   string   `yaml:"backend"`
		Languages []string `yaml:"languages"`
	} `yaml:"ocr"`
	Converter struct {
		HTMLLinkDomain string   `yaml:"htmlLinkDomain"`
		AllowedFormats []string `yaml:"allowedFormats"`
	} `yaml:"converter"`
}

// LoadFile parses a YAML config file. An empty path yields an empty config.
func LoadFile(path string) (*FileConfig, error) {
	fc := &FileConfig{}
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

var (
	fileOnce   sync.Once
	fileConfig *FileConfig
)

// getFileConfig returns the CONFIG_FILE contents, or an empty config when the
// variable is unset or the file is unusable.
func getFileConfig() *FileConfig {
	fileOnce.Do(func() {
		loadDotEnv()
		fc, err := LoadFile(os.Getenv("CONFIG_FILE"))
		if err != nil {
			log.Printf("Warning: %v, ignoring config file", err)
			fc = &FileConfig{}
		}
		fileConfig = fc
	})
	return fileConfig
}
