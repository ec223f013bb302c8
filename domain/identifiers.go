package domain

import (
	"strings"
	"time"
)

// ClientIdentifier identifies one connection accepted by the server.
type ClientIdentifier struct {
	ConnectionId   string
	RemoteAddr     string
	ConnectionTime time.Time
}

func (c ClientIdentifier) String() string {
	return strings.Join([]string{c.RemoteAddr, c.ConnectionId}, "/")
}
