package config

import (
	"github.com/spf13/viper"
)

// HostConfig configures the extension host.
type HostConfig struct {
	ExtensionPaths []string   `mapstructure:"extension_paths"`
	SettingsDir    string     `mapstructure:"settings_dir"`
	LogLevel       string     `mapstructure:"log_level"`
	HTTP           HTTPConfig `mapstructure:"http"`
	Wasm           WasmConfig `mapstructure:"wasm"`
}

// HTTPConfig configures the shared request client.
type HTTPConfig struct {
	// Default User-Agent applied when a request sets none.
	UserAgent string `mapstructure:"user_agent"`
	// Per-request timeout in seconds. Zero means no limit; capability
	// deadlines come from the caller's context.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// WasmConfig holds guest runtime configuration.
type WasmConfig struct {
	// Memory limit per guest instance (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging for guest execution.
	Debug bool `mapstructure:"debug"`
}

// LoadHostConfig loads defaults, then overrides from an optional config
// file.
func LoadHostConfig(configPath string) (*HostConfig, error) {
	v := viper.New()

	v.SetDefault("extension_paths", []string{"./extensions"})
	v.SetDefault("settings_dir", "./settings")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64) sourcehost/1.0")
	v.SetDefault("http.timeout_seconds", 0)

	v.SetDefault("wasm.memory_pages", 512) // 32MB
	v.SetDefault("wasm.debug", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg HostConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
