package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/adapters"
	"github.com/njit/courier/config"
	"github.com/njit/courier/domain"
	"github.com/njit/courier/stego"
	"github.com/njit/courier/utils"
	"github.com/njit/courier/wire"
)

// reply texts, sent behind domain.ServerPrefix or domain.ErrorPrefix
const (
	replyWelcome          = "welcome"
	replyClosing          = "closing connection"
	replyMessage          = "message received"
	replyChecksum         = "checksum received"
	replyTransferStarted  = "file transfer started"
	replyChunk            = "chunk received"
	replyFileReceived     = "file received:"
	replyHeartbeat        = "heartbeat received"
	replyUnknown          = "unknown command"
	errInvalidChecksum    = "invalid checksum"
	errInvalidFileName    = "invalid file name"
	errFileTooLarge       = "file too large"
	errChecksumMismatch   = "checksum mismatch"
	errNoTransfer         = "no transfer in progress"
	errInvalidFileContent = "invalid file content"
	errStoreFailed        = "store failed"
	errUpgradeUnavailable = "upgrade unavailable"
	errMalformedFrame     = "malformed frame"

	uploadDescription = "uploaded from client"
)

// uploadMtx serialises picking a free name and writing it across sessions.
var uploadMtx sync.Mutex

type transfer struct {
	name    string
	content strings.Builder
}

// Session serves one client connection.
type Session struct {
	id       domain.ClientIdentifier
	conn     wire.Conn
	store    adapters.FileStore
	cfg      config.Server
	transfer *transfer
	checksum *uint32
	stopped  atomic.Bool
}

func NewSession(id domain.ClientIdentifier, conn wire.Conn, store adapters.FileStore, cfg config.Server) *Session {
	return &Session{
		id:    id,
		conn:  conn,
		store: store,
		cfg:   cfg,
	}
}

func (s *Session) Id() domain.ClientIdentifier {
	return s.id
}

// Start greets the client and handles requests until the client leaves, the
// read deadline expires or Stop is called. A clean end returns nil.
func (s *Session) Start(ctx context.Context) error {
	ctx = utils.ContextFromIdentifier(ctx, s.id)
	logger.L().Info("client connected", helpers.String("client", s.id.String()))
	defer logger.L().Info("client disconnected", helpers.String("client", s.id.String()))

	if err := s.conn.WriteFrame(domain.ServerReply(replyWelcome)); err != nil {
		if s.stopped.Load() {
			return nil
		}
		return fmt.Errorf("send welcome: %w", err)
	}
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		payload, err := s.conn.ReadFrame()
		switch {
		case err == nil:
		case errors.Is(err, wire.ErrMalformedFrame):
			logger.L().Warning("malformed frame", helpers.String("client", s.id.String()), helpers.Error(err))
			if err := s.conn.WriteFrame(domain.ErrorReply(errMalformedFrame)); err != nil {
				return fmt.Errorf("send reply: %w", err)
			}
			continue
		case s.stopped.Load() || ctx.Err() != nil || errors.Is(err, io.EOF):
			return nil
		default:
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.L().Info("client idle for too long", helpers.String("client", s.id.String()),
					helpers.String("timeout", s.cfg.ReadTimeout.String()))
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		done, err := s.handle(ctx, payload)
		if err != nil {
			if s.stopped.Load() {
				return nil
			}
			return err
		}
		if done {
			return nil
		}
	}
}

// Stop closes the connection, which unblocks Start.
func (s *Session) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection %s: %w", s.id.ConnectionId, err)
	}
	return nil
}

// handle answers one request. done is true when the client asked to leave.
func (s *Session) handle(ctx context.Context, payload string) (done bool, err error) {
	req := domain.ParseRequest(payload, s.transfer != nil)
	if req.Command != domain.CommandChunk {
		logger.L().Debug("received request", helpers.String("client", s.id.String()),
			helpers.String("command", req.Command.String()))
	}
	var reply string
	switch req.Command {
	case domain.CommandExit:
		return true, s.conn.WriteFrame(domain.ServerReply(replyClosing))
	case domain.CommandMessage:
		logger.L().Info("message", helpers.String("client", s.id.String()), helpers.String("text", req.Argument))
		messagesReceivedCounter.Inc()
		reply = domain.ServerReply(replyMessage)
	case domain.CommandChecksum:
		reply = s.handleChecksum(req.Argument)
	case domain.CommandFileStart:
		reply = s.handleFileStart(req.Argument)
	case domain.CommandChunk:
		reply = s.handleChunk(req.Argument)
	case domain.CommandFileEnd:
		reply = s.handleFileEnd(ctx)
	case domain.CommandVersionCheck:
		reply = domain.VersionInfo(s.cfg.Version.Current, s.cfg.Version.UpgradeAvailable)
	case domain.CommandUpgradeRequest:
		return false, s.sendUpgrade(req.Argument)
	case domain.CommandHeartbeat:
		reply = domain.ServerReply(replyHeartbeat)
	case domain.CommandListFiles:
		reply = s.handleListFiles(ctx)
	default:
		reply = domain.ServerReply(replyUnknown)
	}
	if err := s.conn.WriteFrame(reply); err != nil {
		return false, fmt.Errorf("send reply: %w", err)
	}
	return false, nil
}

func (s *Session) handleChecksum(argument string) string {
	sum, err := strconv.ParseUint(strings.TrimSpace(argument), 10, 32)
	if err != nil {
		s.checksum = nil
		return domain.ErrorReply(errInvalidChecksum)
	}
	expected := uint32(sum)
	s.checksum = &expected
	return domain.ServerReply(replyChecksum)
}

func (s *Session) handleFileStart(argument string) string {
	name, err := SanitizeFileName(argument)
	if err != nil {
		logger.L().Warning("rejected file name", helpers.String("client", s.id.String()),
			helpers.String("name", argument), helpers.Error(err))
		s.transfer = nil
		return domain.ErrorReply(errInvalidFileName)
	}
	s.transfer = &transfer{name: name}
	return domain.ServerReply(replyTransferStarted)
}

func (s *Session) handleChunk(chunk string) string {
	if s.cfg.MaxUploadSize > 0 && int64(s.transfer.content.Len()+len(chunk)) > s.cfg.MaxUploadSize {
		logger.L().Warning("upload too large, transfer aborted", helpers.String("client", s.id.String()),
			helpers.String("file", s.transfer.name))
		s.transfer = nil
		s.checksum = nil
		return domain.ErrorReply(errFileTooLarge)
	}
	s.transfer.content.WriteString(chunk)
	return domain.ServerReply(replyChunk)
}

func (s *Session) handleFileEnd(ctx context.Context) string {
	t, expected := s.transfer, s.checksum
	s.transfer, s.checksum = nil, nil
	if t == nil {
		return domain.ErrorReply(errNoTransfer)
	}
	data, err := base64.StdEncoding.DecodeString(t.content.String())
	if err != nil {
		logger.L().Warning("cannot decode upload", helpers.String("file", t.name), helpers.Error(err))
		return domain.ErrorReply(errInvalidFileContent)
	}
	if expected != nil {
		if actual := utils.CRC32Bytes(data); actual != *expected {
			logger.L().Warning("upload checksum mismatch", helpers.String("file", t.name),
				helpers.Interface("expected", *expected), helpers.Interface("actual", actual))
			return domain.ErrorReply(errChecksumMismatch)
		}
	}
	data = s.watermark(t.name, data)
	id, err := s.storeUpload(ctx, t.name, data)
	if err != nil {
		logger.L().Error("cannot store upload", helpers.String("file", t.name), helpers.Error(err))
		return domain.ErrorReply(errStoreFailed)
	}
	return domain.ServerReply(replyFileReceived + strconv.FormatInt(id, 10))
}

// watermark hides the configured text in BMP uploads. Other files, and images
// that cannot carry the text, are stored unchanged.
func (s *Session) watermark(name string, data []byte) []byte {
	w := s.cfg.Watermark
	if w == nil || !w.Enabled || !stego.IsCarrier(name) {
		return data
	}
	img, err := stego.DecodeBMP(bytes.NewReader(data))
	if err != nil {
		logger.L().Warning("cannot decode bmp upload, storing as is", helpers.String("file", name), helpers.Error(err))
		return data
	}
	marked, err := stego.Hide(img, w.Text, stego.Options{Random: w.Random, Seed: w.Seed})
	if err != nil {
		logger.L().Warning("cannot watermark upload, storing as is", helpers.String("file", name), helpers.Error(err))
		return data
	}
	var buf bytes.Buffer
	if err := stego.EncodeBMP(&buf, marked); err != nil {
		logger.L().Warning("cannot encode watermarked upload, storing as is", helpers.String("file", name), helpers.Error(err))
		return data
	}
	return buf.Bytes()
}

func (s *Session) storeUpload(ctx context.Context, name string, data []byte) (int64, error) {
	uploadMtx.Lock()
	path, err := uniquePath(s.cfg.UploadDir, name)
	if err == nil {
		err = utils.WriteFileAtomic(path, data, 0o644)
	}
	uploadMtx.Unlock()
	if err != nil {
		return 0, fmt.Errorf("write upload: %w", err)
	}
	record := domain.FileRecord{
		Filename:    filepath.Base(path),
		UploadTime:  time.Now().UTC().Truncate(time.Second),
		Description: uploadDescription,
		Size:        int64(len(data)),
		Checksum:    utils.CRC32Bytes(data),
		StoredPath:  path,
	}
	id, err := s.store.InsertFile(ctx, record)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			logger.L().Warning("cannot remove orphan upload", helpers.String("path", path), helpers.Error(rmErr))
		}
		return 0, fmt.Errorf("insert file record: %w", err)
	}
	filesStoredCounter.Inc()
	bytesStoredCounter.Add(float64(len(data)))
	storedFilesGauge.Inc()
	logger.L().Info("file stored", helpers.String("client", s.id.String()),
		helpers.String("path", path), helpers.Int("size", len(data)), helpers.Interface("id", id))
	return id, nil
}

// sendUpgrade streams the upgrade artifact the same way a client uploads a file.
func (s *Session) sendUpgrade(name string) error {
	artifact := s.cfg.Version.ArtifactPath
	if artifact == "" {
		return s.conn.WriteFrame(domain.ErrorReply(errUpgradeUnavailable))
	}
	sum, err := utils.CRC32File(artifact)
	if err != nil {
		logger.L().Error("cannot read upgrade artifact", helpers.String("path", artifact), helpers.Error(err))
		return s.conn.WriteFrame(domain.ErrorReply(errUpgradeUnavailable))
	}
	content, err := utils.EncodeFile(artifact)
	if err != nil {
		logger.L().Error("cannot read upgrade artifact", helpers.String("path", artifact), helpers.Error(err))
		return s.conn.WriteFrame(domain.ErrorReply(errUpgradeUnavailable))
	}
	if name, err = SanitizeFileName(name); err != nil {
		name = filepath.Base(artifact)
	}
	logger.L().Info("sending upgrade", helpers.String("client", s.id.String()), helpers.String("artifact", artifact))
	frames := []string{
		domain.Format(domain.CommandChecksum, strconv.FormatUint(uint64(sum), 10)),
		domain.Format(domain.CommandFileStart, name),
	}
	for _, chunk := range utils.ChunkString(content, utils.DefaultChunkSize) {
		frames = append(frames, domain.Format(domain.CommandChunk, chunk))
	}
	frames = append(frames, domain.Format(domain.CommandFileEnd, ""))
	for _, frame := range frames {
		if err := s.conn.WriteFrame(frame); err != nil {
			return fmt.Errorf("send upgrade: %w", err)
		}
	}
	return nil
}

func (s *Session) handleListFiles(ctx context.Context) string {
	records, err := s.store.ListFiles(ctx)
	if err != nil {
		logger.L().Error("cannot list files", helpers.Error(err))
		return domain.ErrorReply(errStoreFailed)
	}
	reply, err := domain.FilesReply(records)
	if err != nil {
		logger.L().Error("cannot render file list", helpers.Error(err))
		return domain.ErrorReply(errStoreFailed)
	}
	return reply
}

// SanitizeFileName keeps only the last path element of a client supplied name.
func SanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := filepath.Base(name)
	if name == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}

// uniquePath returns dir/name, or dir/stem_N.ext with the first free N.
func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}
