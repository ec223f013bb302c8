package core

import (
	"context"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/adapters"
	"github.com/njit/courier/config"
	"github.com/njit/courier/utils"
	"github.com/njit/courier/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fileContent = []byte("the quick brown fox jumps over the lazy dog\n")
)

func testServerConfig(t *testing.T) config.Server {
	cfg := config.Server{
		UploadDir:     t.TempDir(),
		ReadTimeout:   5 * time.Second,
		MaxUploadSize: 1 << 20,
		StatsSchedule: "@every 1h",
	}
	require.NoError(t, cfg.ValidateConfig())
	return cfg
}

// initSession runs a server session on one end of a pipe and returns the other
// end, after the welcome frame was read, plus the channel Start reports to.
func initSession(t *testing.T, cfg config.Server, store adapters.FileStore) (wire.Conn, net.Conn, <-chan error) {
	err := logger.L().SetLevel(helpers.DebugLevel.String())
	assert.NoError(t, err)
	clientConn, serverConn := net.Pipe()
	session := NewSession(utils.NewClientIdentifier("pipe"), wire.NewStreamConn(serverConn, 0), store, cfg)
	done := make(chan error, 1)
	go func() {
		done <- session.Start(context.TODO())
	}()
	t.Cleanup(func() {
		_ = session.Stop()
		_ = clientConn.Close()
	})
	conn := wire.NewStreamConn(clientConn, 0)
	welcome, err := conn.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, "SERVER:welcome", welcome)
	return conn, clientConn, done
}

func request(t *testing.T, conn wire.Conn, payload string) string {
	require.NoError(t, conn.WriteFrame(payload))
	reply, err := conn.ReadFrame()
	require.NoError(t, err)
	return reply
}

// upload walks the FILE_START, chunk, FILE_END exchange and returns the final reply.
func upload(t *testing.T, conn wire.Conn, name string, data []byte, checksum string) string {
	if checksum != "" {
		require.Equal(t, "SERVER:checksum received", request(t, conn, "CHECKSUM:"+checksum))
	}
	require.Equal(t, "SERVER:file transfer started", request(t, conn, "FILE_START:"+name))
	for _, chunk := range utils.ChunkString(base64.StdEncoding.EncodeToString(data), 16) {
		require.Equal(t, "SERVER:chunk received", request(t, conn, chunk))
	}
	return request(t, conn, "FILE_END")
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func writeArtifact(t *testing.T, content []byte) string {
	path := filepath.Join(t.TempDir(), "client-1.0.1")
	require.NoError(t, os.WriteFile(path, content, 0o755))
	return path
}
