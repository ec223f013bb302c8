package utils

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njit/courier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC32String(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint32
	}{
		{
			name: "empty",
			in:   "",
			want: 0,
		},
		{
			name: "check value",
			in:   "123456789",
			want: 0xCBF43926,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CRC32String(tt.in))
		})
	}
}

func TestCRC32File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	content := strings.Repeat("123456789", 3000)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := CRC32File(path)
	require.NoError(t, err)
	assert.Equal(t, CRC32String(content), got)

	_, err = CRC32File(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestEncodeFile_DecodeToFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	data := []byte{0, 1, 2, 0xff, 'a', 'b'}
	require.NoError(t, os.WriteFile(src, data, 0o644))

	encoded, err := EncodeFile(src)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), encoded)

	require.NoError(t, DecodeToFile(encoded, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Error(t, DecodeToFile("***", filepath.Join(dir, "bad.bin")))
	_, err = os.Stat(filepath.Join(dir, "bad.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFileAtomic(filepath.Join(dir, "out"), []byte("x"), 0o600))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out", entries[0].Name())
}

func TestChunkString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		size int
		want []string
	}{
		{
			name: "empty",
			in:   "",
			size: 4,
			want: []string{},
		},
		{
			name: "exact",
			in:   "abcdefgh",
			size: 4,
			want: []string{"abcd", "efgh"},
		},
		{
			name: "remainder",
			in:   "abcdefghij",
			size: 4,
			want: []string{"abcd", "efgh", "ij"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkString(tt.in, tt.size))
		})
	}
	assert.Len(t, ChunkString(strings.Repeat("a", DefaultChunkSize+1), 0), 2)
}

func TestClientIdentifier_RoundTrip(t *testing.T) {
	id := NewClientIdentifier("127.0.0.1:9000")
	assert.NotEmpty(t, id.ConnectionId)
	ctx := ContextFromIdentifier(context.TODO(), id)
	assert.Equal(t, id, ClientIdentifierFromContext(ctx))
	assert.Equal(t, domain.ClientIdentifier{}, ClientIdentifierFromContext(context.TODO()))
}

func TestNewBackOff(t *testing.T) {
	b := NewBackOff(time.Second)
	assert.Greater(t, b.NextBackOff(), time.Duration(0))
}

func TestCronTicker(t *testing.T) {
	ticker, err := NewCronTicker("@every 1s")
	require.NoError(t, err)
	defer ticker.Stop()
	select {
	case <-ticker.Chan():
	case <-time.After(3 * time.Second):
		t.Fatal("cron ticker did not tick")
	}

	_, err = NewCronTicker("not a schedule")
	assert.Error(t, err)
	_, err = NewCronTicker("TZ=Nowhere/Invalid * * * * *")
	assert.Error(t, err)
}
