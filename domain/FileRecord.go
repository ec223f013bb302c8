package domain

import (
	"fmt"
	"time"
)

// UploadTimeLayout matches the text produced by SQLite datetime('now').
const UploadTimeLayout = "2006-01-02 15:04:05"

// FileRecord represents an uploaded file stored by the server.
type FileRecord struct {
	Id          int64     `json:"id"`
	Filename    string    `json:"filename"`
	UploadTime  time.Time `json:"uploadTime"`
	Description string    `json:"description"`
	Size        int64     `json:"size"`
	Checksum    uint32    `json:"checksum"`
	StoredPath  string    `json:"storedPath"`
}

func (r FileRecord) String() string {
	return fmt.Sprintf("ID: %d, file: %s, time: %s", r.Id, r.Filename, r.UploadTime.UTC().Format(UploadTimeLayout))
}
