package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the loom configuration file (~/.config/loom/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Device string `yaml:"device"`

	// Decoding defaults
	Strategy    *string  `yaml:"strategy"`
	MaxLength   *int64   `yaml:"max_length"`
	NumBeams    *int64   `yaml:"num_beams"`
	TopK        *int64   `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`
	Temperature *float64 `yaml:"temperature"`
	Seed        *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "loom", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config when the file
// doesn't exist or fails to parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyRunConfig applies decoding defaults from the config file to run
// command flags the user did not set explicitly.
func applyRunConfig(c *cli.Command, cfg Config,
	strategy *string, maxLength, numBeams, topK *int64, topP, temp *float64, seed *int64,
) {
	if cfg.Strategy != nil && !c.IsSet("strategy") {
		*strategy = *cfg.Strategy
	}
	if cfg.MaxLength != nil && !c.IsSet("max-length") {
		*maxLength = *cfg.MaxLength
	}
	if cfg.NumBeams != nil && !c.IsSet("beams") {
		*numBeams = *cfg.NumBeams
	}
	if cfg.TopK != nil && !c.IsSet("topk") {
		*topK = *cfg.TopK
	}
	if cfg.TopP != nil && !c.IsSet("topp") {
		*topP = *cfg.TopP
	}
	if cfg.Temperature != nil && !c.IsSet("temp") {
		*temp = *cfg.Temperature
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
}

// applyCommonConfig applies config defaults for flags the user did not
// set explicitly.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.Device != "" && !c.IsSet("device") {
		deviceName = cfg.Device
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
