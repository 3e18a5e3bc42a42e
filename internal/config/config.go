// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Discord     DiscordConfig     `mapstructure:"discord"`
	Twitch      TwitchConfig      `mapstructure:"twitch"`
	JSONFeed    JSONFeedConfig    `mapstructure:"jsonfeed"`
	Peer        PeerConfig        `mapstructure:"peer"`
	Communities []CommunityConfig `mapstructure:"communities"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DiscordConfig holds the Discord collector configuration.
type DiscordConfig struct {
	Token           string `mapstructure:"token" validate:"required"`
	RefreshInterval int    `mapstructure:"refresh_interval"` // seconds
}

// TwitchConfig holds the Twitch collector configuration.
type TwitchConfig struct {
	ClientID        string `mapstructure:"client_id" validate:"required"`
	ClientSecret    string `mapstructure:"client_secret" validate:"required"`
	RefreshInterval int    `mapstructure:"refresh_interval"`
}

// JSONFeedConfig holds the JSON feed collector configuration.
type JSONFeedConfig struct {
	RefreshInterval int `mapstructure:"refresh_interval"`
	RequestTimeout  int `mapstructure:"request_timeout"` // seconds
}

// PeerConfig holds the peer federation collector configuration.
type PeerConfig struct {
	RefreshInterval int `mapstructure:"refresh_interval"`
	RequestTimeout  int `mapstructure:"request_timeout"`
}

// CommunityConfig is one operator-onboarded community. Applying it marks the
// community as configured; its fields are operator-owned and never
// overwritten by collectors.
type CommunityConfig struct {
	ExternalID        string `mapstructure:"external_id" validate:"required"`
	Platform          string `mapstructure:"platform" validate:"required,oneof=DISCORD JSON TWITCH PEER"`
	Name              string `mapstructure:"name" validate:"required"`
	Tags              string `mapstructure:"tags"`
	CustomDescription string `mapstructure:"custom_description"`
	URL               string `mapstructure:"url"`
	PrivateChannelID  string `mapstructure:"private_channel_id"`
	PublicChannelID   string `mapstructure:"public_channel_id"`
	EventsURL         string `mapstructure:"events_url"`
}

var validate = validator.New()

// Validate reports whether the Discord collector can start.
func (c DiscordConfig) Validate() error {
	return validate.Struct(c)
}

// Validate reports whether the Twitch collector can start.
func (c TwitchConfig) Validate() error {
	return validate.Struct(c)
}

// Validate checks every configured community. An invalid entry names its
// position so the operator can find it.
func (c *Config) Validate() error {
	for i, community := range c.Communities {
		if err := validate.Struct(community); err != nil {
			return fmt.Errorf("communities[%d]: %w", i, err)
		}
	}
	return nil
}

// ServerAddress returns the host:port the HTTP server listens on.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./data/signalhub.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("discord.refresh_interval", 300)
	v.SetDefault("twitch.refresh_interval", 600)
	v.SetDefault("jsonfeed.refresh_interval", 300)
	v.SetDefault("jsonfeed.request_timeout", 30)
	v.SetDefault("peer.refresh_interval", 300)
	v.SetDefault("peer.request_timeout", 30)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("SIGNALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
