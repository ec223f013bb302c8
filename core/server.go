package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/goradd/maps"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/adapters"
	"github.com/njit/courier/config"
	"github.com/njit/courier/utils"
	"github.com/njit/courier/wire"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/multierr"
)

const releaseTimeout = 5 * time.Second

var ErrServerClosed = errors.New("server closed")

// Server accepts connections and runs one Session per client on a bounded pool.
// Connections beyond the pool size wait for a free worker.
type Server struct {
	cfg      config.Server
	store    adapters.FileStore
	pool     *ants.PoolWithFunc
	sessions maps.SafeMap[string, *Session]
	ctx      context.Context
	cancel   context.CancelFunc

	mtx       sync.Mutex
	listeners []net.Listener
	closed    bool
}

func NewServer(ctx context.Context, cfg config.Server, store adapters.FileStore) (*Server, error) {
	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	s := &Server{
		cfg:   cfg,
		store: store,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pool, err := ants.NewPoolWithFunc(cfg.MaxConnections, func(i interface{}) {
		s.runSession(i.(*Session))
	})
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("create session pool: %w", err)
	}
	s.pool = pool
	if err := s.startStatsTask(); err != nil {
		s.cancel()
		pool.Release()
		return nil, err
	}
	return s, nil
}

// Serve accepts raw TCP clients from l until Stop is called, then returns ErrServerClosed.
func (s *Server) Serve(l net.Listener) error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return ErrServerClosed
	}
	s.listeners = append(s.listeners, l)
	s.mtx.Unlock()

	logger.L().Info("accepting connections", helpers.String("address", l.Addr().String()),
		helpers.Int("maxConnections", s.cfg.MaxConnections))
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.L().Warning("temporary accept error", helpers.Error(err))
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.dispatch(wire.NewStreamConn(conn, wire.DefaultMaxFrameSize))
	}
}

// WebsocketHandler upgrades HTTP requests and serves the same protocol, one frame per text message.
func (s *Server) WebsocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isClosed() {
			http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.L().Error("unable to upgrade connection", helpers.Error(err))
			return
		}
		s.dispatch(wire.NewWebsocketServerConn(conn))
	})
}

func (s *Server) dispatch(conn wire.Conn) {
	id := utils.NewClientIdentifier(conn.RemoteAddr().String())
	session := NewSession(id, conn, s.store, s.cfg)
	s.sessions.Set(id.ConnectionId, session)
	// Stop may already have swept the registered sessions
	if s.isClosed() {
		s.sessions.Delete(id.ConnectionId)
		_ = session.Stop()
		return
	}
	// blocks while every worker is busy
	if err := s.pool.Invoke(session); err != nil {
		logger.L().Warning("cannot schedule session", helpers.String("client", id.String()), helpers.Error(err))
		s.sessions.Delete(id.ConnectionId)
		_ = session.Stop()
	}
}

func (s *Server) runSession(session *Session) {
	id := session.Id()
	connectedClientsGauge.Inc()
	defer func() {
		connectedClientsGauge.Dec()
		s.sessions.Delete(id.ConnectionId)
		if err := session.Stop(); err != nil {
			logger.L().Warning("error closing session", helpers.String("client", id.String()), helpers.Error(err))
		}
	}()
	if err := session.Start(s.ctx); err != nil {
		logger.L().Error("session ended with error", helpers.String("client", id.String()), helpers.Error(err))
	}
}

// ConnectedClients returns the number of registered sessions, including those waiting for a worker.
func (s *Server) ConnectedClients() int {
	return s.sessions.Len()
}

func (s *Server) isClosed() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.closed
}

// Stop closes the listeners and every live session, then waits up to five
// seconds for the workers to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	s.listeners = nil
	s.mtx.Unlock()

	s.cancel()
	var err error
	for _, l := range listeners {
		if closeErr := l.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("close listener: %w", closeErr))
		}
	}
	s.sessions.Range(func(_ string, session *Session) bool {
		err = multierr.Append(err, session.Stop())
		return true
	})
	timeout := releaseTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if releaseErr := s.pool.ReleaseTimeout(timeout); releaseErr != nil {
		err = multierr.Append(err, fmt.Errorf("release session pool: %w", releaseErr))
	}
	logger.L().Info("server stopped")
	return err
}

// startStatsTask refreshes the stored files gauge on the configured schedule.
func (s *Server) startStatsTask() error {
	ticker, err := utils.NewCronTicker(s.cfg.StatsSchedule)
	if err != nil {
		return fmt.Errorf("create stats ticker: %w", err)
	}
	s.refreshStats()
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.Chan():
				s.refreshStats()
			}
		}
	}()
	return nil
}

func (s *Server) refreshStats() {
	count, err := s.store.CountFiles(s.ctx)
	if err != nil {
		logger.L().Warning("cannot count stored files", helpers.Error(err))
		return
	}
	storedFilesGauge.Set(float64(count))
	logger.L().Debug("stats refreshed", helpers.Int("files", count), helpers.Int("clients", s.sessions.Len()))
}
