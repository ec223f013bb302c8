package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Config
	}{
		{
			name: "client config",
			path: "../configuration/client",
			want: Config{
				Client: Client{
					Host:              "127.0.0.1",
					Port:              8888,
					Transport:         TransportTCP,
					DialTimeout:       5 * time.Second,
					ReadTimeout:       60 * time.Second,
					RetryTimeout:      30 * time.Second,
					HeartbeatInterval: 30 * time.Second,
					ChunkSize:         8192,
					Version:           "1.0.0",
					BinaryPath:        "client",
				},
			},
		},
		{
			name: "server config",
			path: "../configuration/server",
			want: Config{
				Server: Server{
					Port:           8888,
					Transport:      TransportTCP,
					UploadDir:      "uploads",
					DbPath:         "data.db",
					MaxConnections: 10,
					ReadTimeout:    120 * time.Second,
					MaxUploadSize:  64 << 20,
					StatsSchedule:  "@every 1m",
					LogLevel:       "info",
					Version: VersionConfig{
						Current:          "1.0.1",
						UpgradeAvailable: true,
						ArtifactPath:     "dist/client",
					},
					Watermark: &WatermarkConfig{
						Enabled: true,
						Text:    "uploaded from client",
						Random:  true,
						Seed:    12345,
					},
					Prometheus: &PrometheusConfig{
						Enabled: true,
						Port:    9090,
					},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadConfig(tt.path)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestServer_ValidateConfig(t *testing.T) {
	s := Server{Watermark: &WatermarkConfig{Enabled: true}}
	require.NoError(t, s.ValidateConfig())
	assert.Equal(t, DefaultPort, s.Port)
	assert.Equal(t, TransportTCP, s.Transport)
	assert.Equal(t, DefaultUploadDir, s.UploadDir)
	assert.Equal(t, DefaultDbPath, s.DbPath)
	assert.Equal(t, DefaultMaxConnections, s.MaxConnections)
	assert.Equal(t, 120*time.Second, s.ReadTimeout)
	assert.Equal(t, DefaultVersion, s.Version.Current)
	assert.Equal(t, int64(DefaultStegoSeed), s.Watermark.Seed)

	bad := Server{Transport: "udp"}
	assert.Error(t, bad.ValidateConfig())
	bad = Server{Port: 70000}
	assert.Error(t, bad.ValidateConfig())
}

func TestClient_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      Client
		want    Client
		wantErr bool
	}{
		{
			name: "defaults",
			in:   Client{},
			want: Client{
				Host:         DefaultHost,
				Port:         DefaultPort,
				Transport:    TransportTCP,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  60 * time.Second,
				RetryTimeout: 30 * time.Second,
				ChunkSize:    DefaultChunkSize,
				Version:      DefaultVersion,
			},
		},
		{
			name: "websocket url",
			in:   Client{Host: "example.com", Port: 80, Transport: TransportWebsocket},
			want: Client{
				Host:         "example.com",
				Port:         80,
				Transport:    TransportWebsocket,
				ServerUrl:    "ws://example.com:80/",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  60 * time.Second,
				RetryTimeout: 30 * time.Second,
				ChunkSize:    DefaultChunkSize,
				Version:      DefaultVersion,
			},
		},
		{
			name:    "unknown transport",
			in:      Client{Transport: "carrier pigeon"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			err := got.ValidateConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_Address(t *testing.T) {
	assert.Equal(t, "localhost:8888", Client{Host: "localhost", Port: 8888}.Address())
}
