package utils

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/njit/courier/domain"
)

func NewClientIdentifier(remoteAddr string) domain.ClientIdentifier {
	return domain.ClientIdentifier{
		ConnectionId:   uuid.NewString(),
		RemoteAddr:     remoteAddr,
		ConnectionTime: time.Now(),
	}
}

func ContextFromIdentifier(parent context.Context, id domain.ClientIdentifier) context.Context {
	return context.WithValue(parent, domain.ContextKeyClientIdentifier, id)
}

func ClientIdentifierFromContext(ctx context.Context) domain.ClientIdentifier {
	if id, ok := ctx.Value(domain.ContextKeyClientIdentifier).(domain.ClientIdentifier); ok {
		return id
	}
	return domain.ClientIdentifier{}
}

// NewBackOff returns the exponential backoff used when dialing the server.
func NewBackOff(maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsed
	return b
}

// ServePprof starts the pprof endpoints when ENABLE_PROFILER is set.
func ServePprof() {
	if os.Getenv("ENABLE_PROFILER") == "" {
		return
	}
	go func() {
		logger.L().Info("starting pprof server", helpers.String("port", "6060"))
		if err := http.ListenAndServe(":6060", nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("pprof server stopped", helpers.Error(err))
		}
	}()
}

// StartLivenessProbe answers /healthz on port 8000 until the process exits.
func StartLivenessProbe() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		if err := http.ListenAndServe(":8000", mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Warning("liveness probe stopped", helpers.Error(err))
		}
	}()
}
