package config

import (
	"time"

	"github.com/rickgao/socket-client/internal/auth"
)

// Config is the root configuration for a socket client.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ClientConfig holds the websocket endpoint and handshake settings.
type ClientConfig struct {
	Address       string              `yaml:"address"` // ws://, wss://, http://, https:// or bare host
	Origin        string              `yaml:"origin"`
	Protocol      string              `yaml:"protocol"`
	Authorization *auth.Authorization `yaml:"authorization"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"` // Bound on a whole Connect call
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	CloseTimeout     time.Duration `yaml:"close_timeout"`
	ReadLimit        int64         `yaml:"read_limit"` // Bytes, 0 = unlimited
}

// JournalConfig holds message journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
