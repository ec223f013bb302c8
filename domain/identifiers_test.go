package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientIdentifier_String(t *testing.T) {
	type fields struct {
		ConnectionId string
		RemoteAddr   string
	}
	tests := []struct {
		name   string
		fields fields
		want   string
	}{
		{
			name: "address and connection",
			fields: fields{
				ConnectionId: "c1",
				RemoteAddr:   "127.0.0.1:5000",
			},
			want: "127.0.0.1:5000/c1",
		},
		{
			name: "empty",
			want: "/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClientIdentifier{
				ConnectionId:   tt.fields.ConnectionId,
				RemoteAddr:     tt.fields.RemoteAddr,
				ConnectionTime: time.Now(),
			}
			got := c.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileRecord_String(t *testing.T) {
	r := FileRecord{
		Id:         7,
		Filename:   "test.txt",
		UploadTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	assert.Equal(t, "ID: 7, file: test.txt, time: 2024-01-02 03:04:05", r.String())
}
