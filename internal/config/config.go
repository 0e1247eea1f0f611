package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicHost is the hostname embedded in websocket URLs handed back to
	// clients. It may differ from Host when the service sits behind NAT or
	// a container port mapping.
	PublicHost string `yaml:"public_host"`
}

type TranscriptConfig struct {
	Dir             string `yaml:"dir"`
	DefaultFilename string `yaml:"default_filename"`
}

type BroadcastConfig struct {
	PaceInterval time.Duration `yaml:"pace_interval"`
	// ChannelCapacity bounds the per-session delivery backlog when the
	// consumer is slower than the pacing interval (or absent).
	ChannelCapacity int `yaml:"channel_capacity"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			PublicHost: "127.0.0.1",
		},
		Transcript: TranscriptConfig{
			Dir:             "transcript",
			DefaultFilename: "intake_call_test.csv",
		},
		Broadcast: BroadcastConfig{
			PaceInterval:    100 * time.Millisecond,
			ChannelCapacity: 1024,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
