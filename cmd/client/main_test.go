package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njit/courier/config"
	"github.com/njit/courier/core"
	"github.com/njit/courier/domain"
	"github.com/njit/courier/stego"
	"github.com/njit/courier/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer acknowledges messages, announces version 1.0.1 and answers
// LIST_FILES with one record.
func echoServer(t *testing.T) *core.Client {
	clientConn, serverConn := net.Pipe()
	conn := wire.NewStreamConn(serverConn, 0)
	go func() {
		if err := conn.WriteFrame("SERVER:welcome"); err != nil {
			return
		}
		for {
			payload, err := conn.ReadFrame()
			if err != nil {
				return
			}
			switch {
			case payload == "LIST_FILES":
				reply, _ := domain.FilesReply([]domain.FileRecord{
					{Id: 7, Filename: "a.txt", UploadTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
				})
				_ = conn.WriteFrame(reply)
			case payload == "VERSION_CHECK":
				_ = conn.WriteFrame(domain.VersionInfo("1.0.1", true))
			case strings.HasPrefix(payload, "MSG:"):
				_ = conn.WriteFrame("SERVER:message received")
			default:
				_ = conn.WriteFrame("ERROR:unexpected")
			}
		}
	}()
	t.Cleanup(func() { _ = serverConn.Close() })
	client, err := core.Connect(context.TODO(), wire.NewStreamConn(clientConn, 0), config.Client{ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestChatLine(t *testing.T) {
	client := echoServer(t)
	tests := []struct {
		name     string
		line     string
		wantQuit bool
		wantOut  string
		wantErr  bool
	}{
		{name: "blank", line: "   "},
		{name: "message", line: "hello", wantOut: "server: message received\n"},
		{name: "list", line: "/list", wantOut: "ID: 7, file: a.txt, time: 2024-01-02 03:04:05\n"},
		{name: "missing file", line: "/file /does/not/exist", wantErr: true},
		{name: "exit", line: "EXIT", wantQuit: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			quit, err := chatLine(context.TODO(), client, &out, tt.line)
			assert.Equal(t, tt.wantQuit, quit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}

func TestCarrierExtensions(t *testing.T) {
	set := carrierExtensions([]string{".BMP", "dib", " ", ".bmp"})
	assert.Equal(t, 2, set.Cardinality())
	assert.True(t, set.Contains(".bmp"))
	assert.True(t, set.Contains(".dib"))
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	opts := stego.Options{Random: true, Seed: config.DefaultStegoSeed}
	marked, err := stego.Hide(img, "secret", opts)
	require.NoError(t, err)
	require.NoError(t, stego.SaveBMP(marked, filepath.Join(dir, "b.bmp")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.BMP"), []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	var out bytes.Buffer
	require.NoError(t, scanDir(&out, dir, carrierExtensions([]string{".bmp"}), opts))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "a.BMP: unreadable"))
	assert.Equal(t, "b.bmp: secret", lines[1])

	assert.Error(t, scanDir(&out, filepath.Join(dir, "missing"), carrierExtensions([]string{".bmp"}), opts))
}

func TestNotifyUpdate(t *testing.T) {
	client := echoServer(t)
	tests := []struct {
		name    string
		current string
		want    string
	}{
		{name: "older", current: "1.0.0", want: "version 1.0.1 is available (local 1.0.0)"},
		{name: "installed", current: "1.0.1"},
		{name: "newer", current: "1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			notifyUpdate(context.TODO(), client, &out, tt.current)
			if tt.want == "" {
				assert.Empty(t, out.String())
				return
			}
			assert.Contains(t, out.String(), tt.want)
		})
	}
}
