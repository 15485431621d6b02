package config

import (
	"strings"
	"sync"
)

var (
	converterOnce   sync.Once
	converterConfig *ConverterConfig
)

// ConverterConfig tunes what the conversion service accepts and how it
// renders links.
type ConverterConfig struct {
	// HTMLLinkDomain resolves relative HTML links; empty leaves them as is.
	HTMLLinkDomain string
	// AllowedFormats restricts uploads to these format names; empty allows all.
	AllowedFormats []string
}

func GetConverterConfig() *ConverterConfig {
	converterOnce.Do(func() {
		converterConfig = loadConverterConfig(getFileConfig())
	})
	return converterConfig
}

func loadConverterConfig(fc *FileConfig) *ConverterConfig {
	var allowed []string
	for _, f := range getEnvList("ALLOWED_FORMATS", fc.Converter.AllowedFormats) {
		allowed = append(allowed, strings.ToLower(strings.TrimSpace(f)))
	}
	return &ConverterConfig{
		HTMLLinkDomain: getEnv("HTML_LINK_DOMAIN", fc.Converter.HTMLLinkDomain),
		AllowedFormats: allowed,
	}
}
