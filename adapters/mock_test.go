package adapters

import (
	"context"
	"testing"

	"github.com/njit/courier/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore(t *testing.T) {
	ctx := context.TODO()
	m := NewMockStore()

	id1, err := m.InsertFile(ctx, domain.FileRecord{Id: 99, Filename: "a.txt"})
	require.NoError(t, err)
	id2, err := m.InsertFile(ctx, domain.FileRecord{Filename: "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	got, err := m.GetFile(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)
	assert.Equal(t, id1, got.Id)

	_, err = m.GetFile(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	records, err := m.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b.txt", records[1].Filename)

	count, err := m.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	m.FailInsert = true
	_, err = m.InsertFile(ctx, domain.FileRecord{Filename: "c.txt"})
	assert.Error(t, err)

	require.NoError(t, m.Close())
	m.FailInsert = false
	_, err = m.InsertFile(ctx, domain.FileRecord{Filename: "d.txt"})
	assert.Error(t, err)
}
