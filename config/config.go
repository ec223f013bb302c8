package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/spf13/viper"
)

const (
	DefaultPort           = 8888
	DefaultHost           = "localhost"
	DefaultVersion        = "1.0.0"
	DefaultChunkSize      = 8192
	DefaultMaxConnections = 10
	DefaultUploadDir      = "uploads"
	DefaultDbPath         = "data.db"
	DefaultStatsSchedule  = "@every 1m"
	DefaultStegoSeed      = 12345

	TransportTCP       = "tcp"
	TransportWebsocket = "websocket"
)

type Config struct {
	Server Server `mapstructure:"server"`
	Client Client `mapstructure:"client"`
}

type Server struct {
	Port           int               `mapstructure:"port"`
	Transport      string            `mapstructure:"transport"`
	UploadDir      string            `mapstructure:"uploadDir"`
	DbPath         string            `mapstructure:"dbPath"`
	MaxConnections int               `mapstructure:"maxConnections"`
	ReadTimeout    time.Duration     `mapstructure:"readTimeout"`
	MaxUploadSize  int64             `mapstructure:"maxUploadSize"`
	StatsSchedule  string            `mapstructure:"statsSchedule"`
	LogLevel       string            `mapstructure:"logLevel"`
	Version        VersionConfig     `mapstructure:"version"`
	Watermark      *WatermarkConfig  `mapstructure:"watermark"`
	Prometheus     *PrometheusConfig `mapstructure:"prometheus"`
}

// VersionConfig is what the server announces on VERSION_CHECK.
type VersionConfig struct {
	Current          string `mapstructure:"current"`
	UpgradeAvailable bool   `mapstructure:"upgradeAvailable"`
	ArtifactPath     string `mapstructure:"artifactPath"`
}

// WatermarkConfig hides Text in every uploaded BMP before it is stored.
type WatermarkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Text    string `mapstructure:"text"`
	Random  bool   `mapstructure:"random"`
	Seed    int64  `mapstructure:"seed"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type Client struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Transport         string        `mapstructure:"transport"`
	ServerUrl         string        `mapstructure:"serverUrl"`
	DialTimeout       time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`
	RetryTimeout      time.Duration `mapstructure:"retryTimeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	ChunkSize         int           `mapstructure:"chunkSize"`
	Version           string        `mapstructure:"version"`
	BinaryPath        string        `mapstructure:"binaryPath"`
	LogLevel          string        `mapstructure:"logLevel"`
}

// Address returns host:port of the server.
func (c Client) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	if configPathFromEnv := os.Getenv("CONFIG_PATH"); configPathFromEnv != "" {
		v.AddConfigPath(configPathFromEnv)
	}
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return Config{}, err
	}

	var config Config
	err = v.Unmarshal(&config)
	return config, err
}

// ValidateConfig fills in defaults for missing server settings.
func (s *Server) ValidateConfig() error {
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	if s.Transport == "" {
		s.Transport = TransportTCP
	}
	if s.Transport != TransportTCP && s.Transport != TransportWebsocket {
		return fmt.Errorf("unknown transport %q", s.Transport)
	}
	if s.UploadDir == "" {
		s.UploadDir = DefaultUploadDir
	}
	if s.DbPath == "" {
		s.DbPath = DefaultDbPath
	}
	if s.MaxConnections <= 0 {
		s.MaxConnections = DefaultMaxConnections
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = 120 * time.Second
	}
	if s.MaxUploadSize <= 0 {
		s.MaxUploadSize = 64 << 20
	}
	if s.StatsSchedule == "" {
		s.StatsSchedule = DefaultStatsSchedule
	}
	if s.Version.Current == "" {
		s.Version.Current = DefaultVersion
	}
	if s.Watermark != nil && s.Watermark.Enabled && s.Watermark.Seed == 0 {
		s.Watermark.Seed = DefaultStegoSeed
	}
	return nil
}

// ValidateConfig fills in defaults for missing client settings.
func (c *Client) ValidateConfig() error {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	switch c.Transport {
	case TransportTCP:
	case TransportWebsocket:
		if c.ServerUrl == "" {
			c.ServerUrl = fmt.Sprintf("ws://%s/", c.Address())
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = 30 * time.Second
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	return nil
}

// ApplyLogLevel sets the global logger level, keeping the default on error.
func ApplyLogLevel(level string) {
	if level == "" {
		return
	}
	if err := logger.L().SetLevel(level); err != nil {
		logger.L().Warning("invalid log level", helpers.String("level", level), helpers.Error(err))
	}
}
