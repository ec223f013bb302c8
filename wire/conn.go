package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws/wsutil"
)

// DefaultMaxFrameSize bounds a single line; chunks are 8 KiB of base64 text
// encoded once more, so this leaves plenty of room.
const DefaultMaxFrameSize = 1 << 20

type Conn interface {
	// ReadFrame blocks until a full frame is available and returns its decoded payload.
	// A frame that cannot be decoded returns ErrMalformedFrame and leaves the connection usable.
	ReadFrame() (string, error)
	WriteFrame(payload string) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

type streamConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	maxFrameSize int
	writeMtx     sync.Mutex
}

var _ Conn = (*streamConn)(nil)

// NewStreamConn frames payloads as newline terminated lines on a raw stream.
func NewStreamConn(conn net.Conn, maxFrameSize int) Conn {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &streamConn{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 64*1024),
		maxFrameSize: maxFrameSize,
	}
}

func (c *streamConn) ReadFrame() (string, error) {
	var line []byte
	for {
		part, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				break
			}
			return "", err
		}
		line = append(line, part...)
		if len(line) > c.maxFrameSize {
			return "", fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, c.maxFrameSize)
		}
		if !isPrefix {
			break
		}
	}
	return Decode(string(bytes.TrimRight(line, "\r")))
}

func (c *streamConn) WriteFrame(payload string) error {
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	_, err := io.WriteString(c.conn, Encode(payload)+"\n")
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

type websocketConn struct {
	conn      net.Conn
	readData  func(rw io.ReadWriter) ([]byte, error)
	writeData func(w io.Writer, p []byte) error
	writeMtx  sync.Mutex
}

var _ Conn = (*websocketConn)(nil)

// NewWebsocketServerConn wraps an upgraded server side websocket, one frame per text message.
func NewWebsocketServerConn(conn net.Conn) Conn {
	return &websocketConn{conn: conn, readData: wsutil.ReadClientText, writeData: wsutil.WriteServerText}
}

// NewWebsocketClientConn wraps a dialed client side websocket.
func NewWebsocketClientConn(conn net.Conn) Conn {
	return &websocketConn{conn: conn, readData: wsutil.ReadServerText, writeData: wsutil.WriteClientText}
}

func (c *websocketConn) ReadFrame() (string, error) {
	data, err := c.readData(c.conn)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return "", io.EOF
		}
		return "", err
	}
	return Decode(string(data))
}

func (c *websocketConn) WriteFrame(payload string) error {
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	if err := c.writeData(c.conn, []byte(Encode(payload))); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *websocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *websocketConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}
