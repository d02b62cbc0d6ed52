package config

import "time"

// Config holds client configuration values.
type Config struct {
	// ServerURL is the GraphQL HTTP endpoint for queries and mutations.
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`
	// SubscribeURL is the websocket endpoint for the newMessage subscription.
	// Derived from ServerURL when empty.
	SubscribeURL string `mapstructure:"subscribe_url" yaml:"subscribe_url"`
	// DatabasePath is the local sqlite file backing the durable store.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	// AuthToken is the bearer token presented to the server, if any.
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`

	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// ReconcileInterval is how often a background reconcile pass runs while
	// a session is attached.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
	// ResubscribeBackoffMax caps the exponential backoff between attempts
	// to re-establish a dropped push subscription.
	ResubscribeBackoffMax time.Duration `mapstructure:"resubscribe_backoff_max" yaml:"resubscribe_backoff_max"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:             "http://localhost:4000/graphql",
		DatabasePath:          "chat.db",
		LogLevel:              "info",
		RequestTimeout:        10 * time.Second,
		ReconcileInterval:     15 * time.Second,
		ResubscribeBackoffMax: 30 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.SubscribeURL != "" {
		c.SubscribeURL = other.SubscribeURL
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.AuthToken != "" {
		c.AuthToken = other.AuthToken
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.ReconcileInterval != 0 {
		c.ReconcileInterval = other.ReconcileInterval
	}
	if other.ResubscribeBackoffMax != 0 {
		c.ResubscribeBackoffMax = other.ResubscribeBackoffMax
	}
}
