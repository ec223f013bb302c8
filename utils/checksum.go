package utils

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

const (
	// DefaultChunkSize is the number of base64 characters carried by one file chunk frame.
	DefaultChunkSize = 8192
	checksumBuffer   = 8192
)

// CRC32String returns the IEEE CRC32 of the UTF-8 bytes of s.
func CRC32String(s string) uint32 {
	return crc32.ChecksumIEEE([]byte(s))
}

func CRC32Bytes(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC32File streams the file at path through an IEEE CRC32.
func CRC32File(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	h := crc32.NewIEEE()
	if _, err := io.CopyBuffer(h, bufio.NewReaderSize(f, checksumBuffer), make([]byte, checksumBuffer)); err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	return h.Sum32(), nil
}

func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeToFile writes the decoded content of b64 to path, atomically.
func DecodeToFile(b64, path string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode file content: %w", err)
	}
	return WriteFileAtomic(path, data, 0o644)
}

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ChunkString splits s into pieces of at most size bytes. Base64 text is ASCII,
// so byte offsets are safe.
func ChunkString(s string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([]string, 0, (len(s)+size-1)/size)
	for i := 0; i < len(s); i += size {
		end := min(len(s), i+size)
		chunks = append(chunks, s[i:end])
	}
	return chunks
}
