// Package sqlite stores file records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/adapters"
	"github.com/njit/courier/adapters/sqlite/v1/migrations"
	"github.com/njit/courier/domain"
	_ "modernc.org/sqlite"
)

type Store struct {
	sqlDB *sql.DB
}

var _ adapters.FileStore = (*Store)(nil)

// Open opens the database at path, creating it if needed, and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time; sessions insert concurrently
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.L().Info("file record store opened", helpers.String("path", path))
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) InsertFile(ctx context.Context, record domain.FileRecord) (int64, error) {
	if strings.TrimSpace(record.Filename) == "" {
		return 0, fmt.Errorf("filename is required")
	}
	uploadTime := record.UploadTime
	if uploadTime.IsZero() {
		uploadTime = time.Now()
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO files (filename, upload_time, description, size, checksum, stored_path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.Filename,
		uploadTime.UTC().Format(domain.UploadTimeLayout),
		record.Description,
		record.Size,
		int64(record.Checksum),
		record.StoredPath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	return id, nil
}

func (s *Store) GetFile(ctx context.Context, id int64) (domain.FileRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, filename, upload_time, description, size, checksum, stored_path
		 FROM files WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FileRecord{}, adapters.ErrNotFound
		}
		return domain.FileRecord{}, fmt.Errorf("get file: %w", err)
	}
	return record, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]domain.FileRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, filename, upload_time, description, size, checksum, stored_path
		 FROM files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	records := []domain.FileRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return records, nil
}

func (s *Store) CountFiles(ctx context.Context) (int, error) {
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.FileRecord, error) {
	var record domain.FileRecord
	var uploadTime string
	var checksum int64
	if err := row.Scan(&record.Id, &record.Filename, &uploadTime, &record.Description,
		&record.Size, &checksum, &record.StoredPath); err != nil {
		return domain.FileRecord{}, err
	}
	parsed, err := time.ParseInLocation(domain.UploadTimeLayout, uploadTime, time.UTC)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("parse upload time %q: %w", uploadTime, err)
	}
	record.UploadTime = parsed
	record.Checksum = uint32(checksum)
	return record, nil
}
