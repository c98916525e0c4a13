// Package ingest receives flush events from the collection daemon and
// hands each snapshot to every configured instance.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsd-cloudwatch/internal/export"
	httpexport "github.com/ethpandaops/statsd-cloudwatch/internal/export/http"
	"github.com/ethpandaops/statsd-cloudwatch/internal/statsd"
)

// FlushPath is the route flush events are posted to.
const FlushPath = "/flush"

// Server accepts flush events over HTTP or a channel and fans them out.
type Server struct {
	log      logrus.FieldLogger
	cfg      Config
	health   *export.HealthMetrics
	flushers []statsd.Flusher

	server   *http.Server
	listener net.Listener

	wg sync.WaitGroup
}

// NewServer creates a server dispatching to flushers.
func NewServer(
	log logrus.FieldLogger,
	cfg Config,
	health *export.HealthMetrics,
	flushers ...statsd.Flusher,
) *Server {
	cfg.ApplyDefaults()

	return &Server{
		log:      log.WithField("component", "ingest"),
		cfg:      cfg,
		health:   health,
		flushers: flushers,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+FlushPath, s.handleFlush)

	return mux
}

// Start begins listening for flush events.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("Ingest server started")

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Ingest server error")
		}
	}()

	return nil
}

// Addr returns the actual listener address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.cfg.Addr
}

// Run dispatches events received on ch until it is closed or ctx is done.
func (s *Server) Run(ctx context.Context, ch <-chan statsd.FlushEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}

			s.Dispatch(ev)
		}
	}
}

// Dispatch hands the event to every flusher, each on its own goroutine.
// The snapshot is shared and must not be modified by flushers.
func (s *Server) Dispatch(ev statsd.FlushEvent) {
	for _, f := range s.flushers {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			f.Flush(ev.Timestamp, ev.Snapshot)
		}()
	}
}

// Wait blocks until all dispatched flushes have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Stop shuts down the listener and waits for dispatched flushes.
func (s *Server) Stop(ctx context.Context) error {
	var err error

	if s.server != nil {
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("shutting down ingest server: %w", serr)
		}
	}

	s.wg.Wait()

	return err
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.reject(w, http.StatusRequestEntityTooLarge, "too_large", err)

			return
		}

		s.reject(w, http.StatusBadRequest, "read", err)

		return
	}

	s.observeBytes(len(body))

	data, err := httpexport.Decompress(r.Header.Get("Content-Encoding"), body, s.cfg.MaxBodyBytes)
	if errors.Is(err, httpexport.ErrBodyTooLarge) {
		s.reject(w, http.StatusRequestEntityTooLarge, "too_large", err)

		return
	}

	if err != nil {
		s.reject(w, http.StatusUnsupportedMediaType, "decompress", err)

		return
	}

	ev, err := statsd.DecodeFlushEventBytes(data)
	if err != nil {
		s.reject(w, http.StatusBadRequest, "decode", err)

		return
	}

	s.Dispatch(ev)

	s.countRequest("accepted")

	s.log.WithFields(logrus.Fields{
		"timestamp": ev.Timestamp,
		"keys":      ev.Snapshot.Len(),
	}).Debug("Accepted flush event")

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) reject(w http.ResponseWriter, status int, reason string, err error) {
	s.log.WithError(err).WithField("reason", reason).Warn("Rejected flush event")

	if s.health != nil {
		s.health.IngestDecodeErrors.WithLabelValues(reason).Inc()
	}

	s.countRequest("rejected")

	http.Error(w, err.Error(), status)
}

func (s *Server) countRequest(status string) {
	if s.health != nil {
		s.health.IngestRequests.WithLabelValues(status).Inc()
	}
}

func (s *Server) observeBytes(n int) {
	if s.health != nil {
		s.health.IngestBytes.Add(float64(n))
	}
}
