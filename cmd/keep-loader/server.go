package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/keep-loader/internal/attestation"
	"github.com/Mindburn-Labs/keep-loader/internal/envelope"
	"github.com/Mindburn-Labs/keep-loader/internal/workload"
)

// ingestRPS and ingestBurst bound how often a single peer may POST to
// /workload before it receives a 429. A legitimate deployer sends
// exactly one request; the budget exists for the retries and probes a
// hostile or misconfigured peer generates while the socket is open.
const (
	ingestRPS   rate.Limit = 1
	ingestBurst            = 5
)

// ingest buffers exactly one workload POST under a mutex, matching the
// concurrency contract: the core never observes concurrent access to
// any of its data structures.
type ingest struct {
	logger   *slog.Logger
	limiters perIPLimiter
	mu       sync.Mutex
	received *envelope.Workload
	done     chan struct{}
}

func newIngest(logger *slog.Logger) *ingest {
	return &ingest{
		logger:   logger,
		limiters: newPerIPLimiter(ingestRPS, ingestBurst),
		done:     make(chan struct{}),
	}
}

// perIPLimiter hands out one rate.Limiter per source IP. Unlike a
// long-lived service, this server's listener is only ever open for the
// handful of requests preceding a single accepted workload, so entries
// are never evicted: the map cannot grow past the number of distinct
// peers that reach the socket before it closes.
type perIPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newPerIPLimiter(rps rate.Limit, burst int) perIPLimiter {
	return perIPLimiter{visitors: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (l *perIPLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = rate.NewLimiter(l.rps, l.burst)
		l.visitors[ip] = v
	}
	return v.Allow()
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return ip
}

func (in *ingest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	if r.URL.Path != "/workload" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	if !in.limiters.allow(clientIP(r)) {
		in.logger.Warn("rejecting ingest request", "request_id", requestID, "reason", "rate limited")
		w.Header().Set("Retry-After", "5")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		in.logger.Warn("rejecting ingest request", "request_id", requestID, "err", err)
		writeComplete(w, envelope.Failure(fmt.Sprintf("reading body: %v", err)))
		return
	}

	wl, err := envelope.DecodeWorkload(body)
	if err != nil {
		in.logger.Warn("rejecting ingest request", "request_id", requestID, "err", err)
		writeComplete(w, envelope.Failure(fmt.Sprintf("decoding envelope: %v", err)))
		return
	}

	in.mu.Lock()
	if in.received != nil {
		in.mu.Unlock()
		in.logger.Warn("rejecting ingest request", "request_id", requestID, "reason", "workload already accepted")
		writeComplete(w, envelope.Failure("a workload has already been accepted"))
		return
	}
	in.received = &wl
	in.mu.Unlock()

	// Success is reported as soon as the workload is buffered, not
	// once it finishes running.
	in.logger.Info("accepted workload", "request_id", requestID, "info", wl.HumanReadableInfo)
	writeComplete(w, envelope.Success())
	close(in.done)
}

func writeComplete(w http.ResponseWriter, c envelope.CommsComplete) {
	body, err := c.Encode()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(body)
}

// serve issues an attestation-bound TLS identity, accepts exactly one
// workload POST, shuts the server down cleanly, then runs the workload
// synchronously so no listening socket survives into the guest.
func serve(ctx context.Context, logger *slog.Logger, addr string) error {
	key, err := attestation.LoadOrGenerateKey()
	if err != nil {
		return fmt.Errorf("obtaining identity key: %w", err)
	}

	cert, report, err := attestation.IssueIdentity(key, "keep-loader")
	if err != nil {
		return fmt.Errorf("issuing attested identity: %w", err)
	}
	logger.Info("issued attested identity", "tee_kind", report.Kind, "report_len", report.Length)

	in := newIngest(logger)
	httpServer := &http.Server{
		Addr:      addr,
		Handler:   in,
		TLSConfig: attestation.ServerTLSConfig(cert),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	tlsLn := tls.NewListener(ln, httpServer.TLSConfig)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(tlsLn)
	}()

	select {
	case <-in.done:
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("https ingest server: %w", err)
		}
	}

	// The TLS server is fully shut down before run begins, so no socket
	// descriptors leak into the guest.
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down ingest server: %w", err)
	}
	if err := <-serveErr; err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("https ingest server: %w", err)
	}

	in.mu.Lock()
	wl := in.received
	in.mu.Unlock()
	if wl == nil {
		return fmt.Errorf("server shut down before a workload was received")
	}

	logger.Info("running workload", "info", wl.HumanReadableInfo)
	results, err := workload.Run(ctx, wl.WasmBinary, nil, nil)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	logger.Info("run succeeded", "results", results)
	return nil
}
