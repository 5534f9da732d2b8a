// Package server implements the add-on hosting server: the network
// listener, the request handlers, the upload pipeline, the download
// planner and the admin control surface.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hanko213/campaignd/blacklist"
	"github.com/hanko213/campaignd/storage"
	"github.com/hanko213/campaignd/store"
	"github.com/hanko213/campaignd/telemetry"
	"github.com/hanko213/campaignd/wml"
)

// flushInterval is how often dirty metadata is flushed to disk.
const flushInterval = 10 * time.Minute

// Options configures a Server.
type Options struct {
	// ConfigFile is the server config path, relative to ServerDir.
	ConfigFile string

	// ServerDir is the server directory; add-ons live under its data/.
	ServerDir string

	// Port overrides the configured port when non-zero. The override is
	// not written back to the config.
	Port int

	// Timings enables per-request servicing time logs.
	Timings bool

	// Logger for the server and its components.
	Logger *slog.Logger
}

// Server hosts add-ons over the framed document protocol.
type Server struct {
	opts   Options
	logger *slog.Logger

	fs    *storage.Dir
	store *store.Store
	cfg   Config

	// mu serializes request handler and admin command execution, so every
	// mutation of the store and the on-disk state happens in some serial
	// order of whole handlers.
	mu        sync.Mutex
	blacklist blacklist.Blacklist

	listener   net.Listener
	controlLn  net.Listener
	metricsSrv *http.Server

	connSeq  atomic.Uint32
	shutdown chan struct{}
	stopOnce sync.Once
}

// New creates a server rooted at opts.ServerDir and loads all state from
// disk. Any load failure is fatal.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConfigFile == "" {
		opts.ConfigFile = "server.cfg"
	}
	if opts.ServerDir == "" {
		opts.ServerDir = "."
	}

	fs, err := storage.Open(opts.ServerDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		fs:       fs,
		store:    store.New(fs, opts.ConfigFile, opts.Logger.With("component", "store")),
		shutdown: make(chan struct{}),
	}

	if err := s.store.Load(); err != nil {
		return nil, err
	}
	s.cfg = configFromDoc(s.store.Config())

	// Command line override; intentionally not persisted.
	if opts.Port != 0 {
		s.cfg.Port = opts.Port
	}

	if s.cfg.ReadOnly {
		s.logger.Info("READ-ONLY MODE ACTIVE")
	}

	s.loadBlacklist()

	s.logger.Info("server loaded",
		"port", s.cfg.Port,
		"dir", fs.Root(),
		"addons", s.store.Len(),
	)

	return s, nil
}

// loadBlacklist replaces the blacklist from the configured file. A missing
// or unreadable file disables the blacklist.
func (s *Server) loadBlacklist() {
	s.blacklist.Clear()

	if s.cfg.BlacklistFile == "" {
		return
	}

	r, err := s.fs.Reader(s.cfg.BlacklistFile)
	if err != nil {
		s.logger.Error("failed to read blacklist, blacklist disabled",
			"path", s.cfg.BlacklistFile, "error", err)
		return
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.Error("failed to read blacklist, blacklist disabled",
			"path", s.cfg.BlacklistFile, "error", err)
		return
	}
	doc, err := wml.Parse(data)
	if err != nil {
		s.logger.Error("failed to parse blacklist, blacklist disabled",
			"path", s.cfg.BlacklistFile, "error", err)
		return
	}

	s.blacklist.Read(doc)
	s.logger.Info("using blacklist", "path", s.cfg.BlacklistFile)
}

// reloadConfig re-reads the server config, add-ons and blacklist from disk.
func (s *Server) reloadConfig() error {
	if err := s.store.Load(); err != nil {
		return err
	}
	port := s.cfg.Port // port changes need a restart
	s.cfg = configFromDoc(s.store.Config())
	s.cfg.Port = port
	s.loadBlacklist()
	return nil
}

// Run serves until the context is cancelled, a termination signal arrives,
// or an admin shut_down command is received. The config is flushed on the
// way out.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln
	s.logger.Info("listening", "addr", ln.Addr().String())

	if err := s.startControlSocket(); err != nil {
		return err
	}
	s.startMetrics()

	signal.Ignore(syscall.SIGPIPE)

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigterm)

	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()

	acceptErr := make(chan error, 1)
	go s.acceptLoop(acceptErr)

	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return nil
		case sig := <-sigterm:
			s.logger.Info("received signal, shutting down", "signal", sig.String())
			return nil
		case <-sighup:
			s.logger.Info("SIGHUP caught, reloading config")
			s.mu.Lock()
			err := s.reloadConfig()
			s.mu.Unlock()
			if err != nil {
				s.logger.Error("config reload failed", "error", err)
			} else {
				s.logger.Info("reloaded configuration")
			}
		case <-flushTicker.C:
			s.mu.Lock()
			err := s.store.WriteConfig()
			s.mu.Unlock()
			if err != nil {
				// A broken flush means metadata can no longer be persisted;
				// treat it as fatal like any other disk failure.
				return fmt.Errorf("periodic flush failed: %w", err)
			}
		case err := <-acceptErr:
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			return fmt.Errorf("accepting connections: %w", err)
		}
	}
}

// Stop triggers shutdown from another goroutine (admin command or test).
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdown) })
}

func (s *Server) teardown() {
	_ = s.listener.Close()
	if s.controlLn != nil {
		_ = s.controlLn.Close()
	}
	if s.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.WriteConfig(); err != nil {
		s.logger.Error("final config flush failed", "error", err)
	}
}

func (s *Server) startMetrics() {
	if s.cfg.MetricsAddress == "" {
		return
	}
	if _, err := telemetry.Init(); err != nil {
		s.logger.Error("metrics init failed", "error", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())
	s.metricsSrv = &http.Server{Addr: s.cfg.MetricsAddress, Handler: mux}
	go func() {
		s.logger.Info("metrics listening", "addr", s.cfg.MetricsAddress)
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

func (s *Server) acceptLoop(errCh chan<- error) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			errCh <- err
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	addr := remoteIP(conn)
	logger := s.logger.With("remote_addr", addr)

	if err := readHandshake(conn); err != nil {
		logger.Debug("handshake failed", "error", err)
		return
	}
	if err := writeHandshake(conn, s.connSeq.Add(1)); err != nil {
		logger.Debug("handshake reply failed", "error", err)
		return
	}

	for {
		doc, err := readDocument(conn, s.cfg.DocumentSizeLimit)
		if err != nil {
			if err != io.EOF {
				logger.Debug("connection closed", "error", err)
			}
			return
		}
		s.handleRequest(conn, addr, doc)
	}
}

// remoteIP strips the port from the connection's remote address; stats
// exemptions and blacklist patterns match on the bare address.
func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ignoreAddressStats reports whether downloads from addr are exempt from
// statistics.
func (s *Server) ignoreAddressStats(addr string) bool {
	for _, mask := range s.cfg.StatsExemptIPs {
		if blacklist.Match(strings.ToLower(mask), strings.ToLower(addr)) {
			return true
		}
	}
	return false
}

// request carries one decoded client request through a handler. Replies go
// to out, which is the client connection in production and a buffer in
// tests.
type request struct {
	op     operation
	opName string
	cfg    *wml.Node
	addr   string
	out    io.Writer
	logger *slog.Logger
}

func (s *Server) handleRequest(conn net.Conn, addr string, doc *wml.Node) {
	var opName string
	var body *wml.Node
	for name, child := range doc.AllChildren() {
		// Only the first child names an operation.
		opName, body = name, child
		break
	}
	if body == nil {
		return
	}

	req := request{
		opName: opName,
		cfg:    body,
		addr:   addr,
		out:    conn,
		logger: s.logger.With("request_id", uuid.NewString(), "remote_addr", addr, "op", opName),
	}

	op, known := parseOperation(opName)
	if !known {
		s.mu.Lock()
		s.sendError(req, "Unrecognized ["+opName+"] request.")
		s.mu.Unlock()
		return
	}
	req.op = op

	start := time.Now()

	s.mu.Lock()
	s.dispatch(req)
	s.mu.Unlock()

	elapsed := time.Since(start)
	if s.opts.Timings {
		req.logger.Info("request serviced", "duration_ms", elapsed.Milliseconds())
	}
	telemetry.RecordRequest(context.Background(), opName, elapsed)
}

// operation is the closed set of request kinds the server understands.
type operation int

const (
	opRequestCampaignList operation = iota
	opRequestCampaign
	opRequestCampaignHash
	opRequestTerms
	opUpload
	opDelete
	opChangePassphrase
)

func parseOperation(name string) (operation, bool) {
	switch name {
	case "request_campaign_list":
		return opRequestCampaignList, true
	case "request_campaign":
		return opRequestCampaign, true
	case "request_campaign_hash":
		return opRequestCampaignHash, true
	case "request_terms":
		return opRequestTerms, true
	case "upload":
		return opUpload, true
	case "delete":
		return opDelete, true
	case "change_passphrase":
		return opChangePassphrase, true
	}
	return 0, false
}

func (s *Server) dispatch(req request) {
	switch req.op {
	case opRequestCampaignList:
		s.handleCampaignList(req)
	case opRequestCampaign:
		s.handleCampaign(req)
	case opRequestCampaignHash:
		s.handleCampaignHash(req)
	case opRequestTerms:
		s.handleTerms(req)
	case opUpload:
		s.handleUpload(req)
	case opDelete:
		s.handleDelete(req)
	case opChangePassphrase:
		s.handleChangePassphrase(req)
	}
}
