package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/njit/courier/domain"
)

// MockStore keeps file records in memory.
type MockStore struct {
	mu      sync.Mutex
	nextId  int64
	Records map[int64]domain.FileRecord
	// FailInsert makes InsertFile return an error, to exercise upload failures.
	FailInsert bool
	closed     bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		nextId:  1,
		Records: map[int64]domain.FileRecord{},
	}
}

var _ FileStore = (*MockStore)(nil)

func (m *MockStore) InsertFile(ctx context.Context, record domain.FileRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, fmt.Errorf("store is closed")
	}
	if m.FailInsert {
		return 0, fmt.Errorf("insert file: mock failure")
	}
	record.Id = m.nextId
	m.nextId++
	m.Records[record.Id] = record
	return record.Id, nil
}

func (m *MockStore) GetFile(_ context.Context, id int64) (domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.Records[id]
	if !ok {
		return domain.FileRecord{}, ErrNotFound
	}
	return record, nil
}

func (m *MockStore) ListFiles(_ context.Context) ([]domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]domain.FileRecord, 0, len(m.Records))
	for id := int64(1); id < m.nextId; id++ {
		if r, ok := m.Records[id]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

func (m *MockStore) CountFiles(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records), nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
