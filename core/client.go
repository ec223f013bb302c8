package core

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gobwas/ws"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/config"
	"github.com/njit/courier/domain"
	"github.com/njit/courier/utils"
	"github.com/njit/courier/wire"
)

var (
	// ErrRemote wraps ERROR: replies from the server.
	ErrRemote            = errors.New("server error")
	ErrUnexpectedReply   = errors.New("unexpected reply")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	closeReplyTimeout    = time.Second
	heartbeatIdleMinimum = time.Second
)

// Client is a synchronous session with the server: every request waits for its reply.
// It is safe for concurrent use.
type Client struct {
	cfg      config.Client
	conn     wire.Conn
	mtx      sync.Mutex
	lastUsed atomic.Int64
	done     chan struct{}
	once     sync.Once
	Welcome  string
}

// Dial connects to the server described by cfg, retrying with exponential
// backoff until cfg.RetryTimeout elapses, and reads the welcome frame.
func Dial(ctx context.Context, cfg config.Client) (*Client, error) {
	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	var conn wire.Conn
	if err := backoff.RetryNotify(func() error {
		var err error
		conn, err = dial(ctx, cfg)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(utils.NewBackOff(cfg.RetryTimeout), ctx), func(err error, d time.Duration) {
		logger.L().Ctx(ctx).Warning("connection error", helpers.Error(err),
			helpers.String("retry in", d.String()))
	}); err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", cfg.Address(), err)
	}
	return Connect(ctx, conn, cfg)
}

func dial(ctx context.Context, cfg config.Client) (wire.Conn, error) {
	netDial := utils.GetDialer(cfg.DialTimeout)
	if cfg.Transport == config.TransportWebsocket {
		dialer := ws.Dialer{
			NetDial: netDial,
			Timeout: cfg.DialTimeout,
		}
		conn, br, _, err := dialer.Dial(ctx, cfg.ServerUrl)
		if err != nil {
			return nil, fmt.Errorf("dial websocket: %w", err)
		}
		if br != nil {
			// the welcome frame may already sit in the handshake buffer
			conn = &bufferedConn{Conn: conn, r: io.MultiReader(br, conn)}
		}
		return wire.NewWebsocketClientConn(conn), nil
	}
	conn, err := netDial(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return wire.NewStreamConn(conn, wire.DefaultMaxFrameSize), nil
}

type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Connect wraps an established connection and reads the welcome frame.
func Connect(ctx context.Context, conn wire.Conn, cfg config.Client) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		conn: conn,
		done: make(chan struct{}),
	}
	welcome, err := c.readReply(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	c.Welcome = strings.TrimPrefix(welcome, domain.ServerPrefix)
	logger.L().Ctx(ctx).Info("connected", helpers.String("server", conn.RemoteAddr().String()),
		helpers.String("welcome", c.Welcome))
	return c, nil
}

func (c *Client) send(payload string) error {
	c.lastUsed.Store(time.Now().UnixNano())
	if err := c.conn.WriteFrame(payload); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}

// readReply returns the next payload. ERROR: replies are returned with ErrRemote.
func (c *Client) readReply(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var deadline time.Time
	if c.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(c.cfg.ReadTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	reply, err := c.conn.ReadFrame()
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if strings.HasPrefix(reply, domain.ErrorPrefix) {
		return reply, fmt.Errorf("%w: %s", ErrRemote, strings.TrimPrefix(reply, domain.ErrorPrefix))
	}
	return reply, nil
}

func (c *Client) roundTrip(ctx context.Context, payload string) (string, error) {
	if err := c.send(payload); err != nil {
		return "", err
	}
	return c.readReply(ctx)
}

// SendMessage sends text and returns the acknowledgement without its prefix.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	reply, err := c.roundTrip(ctx, domain.Format(domain.CommandMessage, text))
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(reply, domain.ServerPrefix), nil
}

// SendFile uploads the file at path and returns the id of the stored record.
func (c *Client) SendFile(ctx context.Context, path string) (int64, error) {
	sum, err := utils.CRC32File(path)
	if err != nil {
		return 0, fmt.Errorf("checksum file: %w", err)
	}
	content, err := utils.EncodeFile(path)
	if err != nil {
		return 0, fmt.Errorf("encode file: %w", err)
	}
	requests := []string{
		domain.Format(domain.CommandChecksum, strconv.FormatUint(uint64(sum), 10)),
		domain.Format(domain.CommandFileStart, filepath.Base(path)),
	}
	for _, chunk := range utils.ChunkString(content, c.cfg.ChunkSize) {
		requests = append(requests, domain.Format(domain.CommandChunk, chunk))
	}
	requests = append(requests, domain.Format(domain.CommandFileEnd, ""))

	c.mtx.Lock()
	defer c.mtx.Unlock()
	var reply string
	for _, request := range requests {
		if reply, err = c.roundTrip(ctx, request); err != nil {
			return 0, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
		}
	}
	prefix := domain.ServerReply(replyFileReceived)
	if !strings.HasPrefix(reply, prefix) {
		return 0, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}
	id, err := strconv.ParseInt(reply[len(prefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}
	logger.L().Ctx(ctx).Info("file uploaded", helpers.String("path", path), helpers.Interface("id", id))
	return id, nil
}

// CheckVersion returns the server version and whether it offers an upgrade.
func (c *Client) CheckVersion(ctx context.Context) (string, bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	reply, err := c.roundTrip(ctx, domain.Format(domain.CommandVersionCheck, ""))
	if err != nil {
		return "", false, err
	}
	return domain.ParseVersionInfo(reply)
}

func (c *Client) ListFiles(ctx context.Context) ([]domain.FileRecord, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	reply, err := c.roundTrip(ctx, domain.Format(domain.CommandListFiles, ""))
	if err != nil {
		return nil, err
	}
	return domain.ParseFilesReply(reply)
}

func (c *Client) Heartbeat(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	_, err := c.roundTrip(ctx, domain.Format(domain.CommandHeartbeat, ""))
	return err
}

// DownloadUpgrade requests the upgrade artifact and writes it to dest once its
// CRC32 matches the announced one. On mismatch nothing is written.
func (c *Client) DownloadUpgrade(ctx context.Context, name, dest string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if err := c.send(domain.Format(domain.CommandUpgradeRequest, name)); err != nil {
		return err
	}
	var (
		expected  *uint32
		started   bool
		content   strings.Builder
		completed bool
	)
	for !completed {
		payload, err := c.readReply(ctx)
		if err != nil {
			return fmt.Errorf("download upgrade: %w", err)
		}
		req := domain.ParseRequest(payload, started)
		switch req.Command {
		case domain.CommandChecksum:
			sum, err := strconv.ParseUint(req.Argument, 10, 32)
			if err != nil {
				return fmt.Errorf("%w: %q", ErrUnexpectedReply, payload)
			}
			v := uint32(sum)
			expected = &v
		case domain.CommandFileStart:
			started = true
			content.Reset()
		case domain.CommandChunk:
			content.WriteString(req.Argument)
		case domain.CommandFileEnd:
			if !started {
				return fmt.Errorf("%w: %q", ErrUnexpectedReply, payload)
			}
			completed = true
		default:
			return fmt.Errorf("%w: %q", ErrUnexpectedReply, payload)
		}
	}
	data, err := base64.StdEncoding.DecodeString(content.String())
	if err != nil {
		return fmt.Errorf("decode upgrade: %w", err)
	}
	if expected != nil {
		if actual := utils.CRC32Bytes(data); actual != *expected {
			return fmt.Errorf("%w: expected %d, got %d", ErrChecksumMismatch, *expected, actual)
		}
	}
	if err := utils.WriteFileAtomic(dest, data, 0o755); err != nil {
		return fmt.Errorf("write upgrade: %w", err)
	}
	logger.L().Ctx(ctx).Info("upgrade downloaded", helpers.String("path", dest), helpers.Int("size", len(data)))
	return nil
}

// StartHeartbeat sends HEARTBEAT every interval while the client has been idle,
// until ctx is done or the client is closed.
func (c *Client) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := utils.NewStdTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.Chan():
				idle := time.Since(time.Unix(0, c.lastUsed.Load()))
				if idle < interval-heartbeatIdleMinimum {
					continue
				}
				if err := c.Heartbeat(ctx); err != nil {
					logger.L().Ctx(ctx).Warning("heartbeat failed", helpers.Error(err))
				}
			}
		}
	}()
}

// Close says goodbye to the server, best effort, and closes the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mtx.Lock()
		defer c.mtx.Unlock()
		if sendErr := c.send(domain.Format(domain.CommandExit, "")); sendErr == nil {
			ctx, cancel := context.WithTimeout(context.Background(), closeReplyTimeout)
			_, _ = c.readReply(ctx)
			cancel()
		}
		if closeErr := c.conn.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = fmt.Errorf("close connection: %w", closeErr)
		}
	})
	return err
}

// PrintFiles writes one line per record, the way the CLI lists them.
func PrintFiles(w io.Writer, records []domain.FileRecord) error {
	bw := bufio.NewWriter(w)
	if len(records) == 0 {
		_, _ = fmt.Fprintln(bw, "no files stored")
	}
	for _, r := range records {
		_, _ = fmt.Fprintln(bw, r.String())
	}
	return bw.Flush()
}

