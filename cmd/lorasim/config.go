package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lorastack/loramac"
	"github.com/lorastack/loramac/band"
)

// fileConfig is the YAML provisioning profile of the simulated device.
// Identifiers and keys are hex encoded.
type fileConfig struct {
	DevEUI   string `yaml:"dev_eui"`
	AppEUI   string `yaml:"app_eui"`
	AppKey   string `yaml:"app_key"`
	Region   string `yaml:"region"`
	Class    string `yaml:"class"`
	ADR      bool   `yaml:"adr"`
	Port     uint8  `yaml:"port"`
	Message  string `yaml:"message"`
	Count    int    `yaml:"count"`
	LogLevel string `yaml:"log_level"`
}

// deviceConfig is the parsed provisioning profile.
type deviceConfig struct {
	DevEUI   loramac.EUI64
	AppEUI   loramac.EUI64
	AppKey   loramac.AES128Key
	Region   band.Name
	Class    string
	ADR      bool
	Port     uint8
	Message  string
	Count    int
	LogLevel string
}

func defaultConfig() deviceConfig {
	return deviceConfig{
		DevEUI:   loramac.EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		AppEUI:   loramac.EUI64{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11},
		AppKey:   loramac.AES128Key{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		Region:   band.EU868,
		Class:    "A",
		Port:     1,
		Message:  "hello",
		Count:    3,
		LogLevel: "info",
	}
}

func loadConfig(path string) (deviceConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}

	if fc.DevEUI != "" {
		if err := cfg.DevEUI.UnmarshalText([]byte(fc.DevEUI)); err != nil {
			return cfg, errors.Wrap(err, "dev_eui")
		}
	}
	if fc.AppEUI != "" {
		if err := cfg.AppEUI.UnmarshalText([]byte(fc.AppEUI)); err != nil {
			return cfg, errors.Wrap(err, "app_eui")
		}
	}
	if fc.AppKey != "" {
		if err := cfg.AppKey.UnmarshalText([]byte(fc.AppKey)); err != nil {
			return cfg, errors.Wrap(err, "app_key")
		}
	}
	if fc.Region != "" {
		cfg.Region = band.Name(fc.Region)
	}
	if fc.Class != "" {
		cfg.Class = fc.Class
	}
	cfg.ADR = fc.ADR
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Message != "" {
		cfg.Message = fc.Message
	}
	if fc.Count != 0 {
		cfg.Count = fc.Count
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}

	return cfg, nil
}
