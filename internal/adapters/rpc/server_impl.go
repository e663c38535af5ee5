// Package rpc exposes an engine handle over JSON-RPC 2.0 and streams its
// events as Server-Sent Events.
package rpc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/metrics"
)

const (
	DefaultRPCAddr = "127.0.0.1:8797"
	tokenHeader    = "X-Wallet-RPC-Token"
)

// Config is everything the server reads from the environment or a config file.
type Config struct {
	Addr         string
	Token        string
	RequireToken bool
	RateLimit    RateLimitConfig
	StreamLimit  StreamLimitConfig
	// HistoryLimit bounds the events kept for stream replay.
	HistoryLimit int
}

type Server struct {
	httpServer *http.Server
	handle     engine.Handle
	rpcToken   string
	requireRPC bool
	rpcLimiter *rpcRateLimiter
	streams    *rpcStreamLimiter
	events     *notificationHub
	logger     *slog.Logger

	listenOnce sync.Once
	listenErr  error
}

// LoadConfigFromEnv reads the WALLET_* variables.
func LoadConfigFromEnv() (Config, error) {
	token, err := resolveRPCToken()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Addr:         strings.TrimSpace(os.Getenv("WALLET_RPC_ADDR")),
		Token:        token,
		RequireToken: requiresRPCToken(),
		RateLimit:    loadRPCRateLimitConfig(),
		StreamLimit:  loadRPCStreamLimitConfig(),
	}, nil
}

// NewServer serves handle. The server does not own the handle; callers close
// it after Run returns.
func NewServer(cfg Config, handle engine.Handle) (*Server, error) {
	if handle == nil {
		return nil, errors.New("rpc server requires an engine handle")
	}
	if cfg.RequireToken && cfg.Token == "" {
		return nil, errors.New("WALLET_RPC_TOKEN is required unless WALLET_REQUIRE_RPC_TOKEN=false or WALLET_ENV is test/development/local")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultRPCAddr
	}
	if cfg.StreamLimit.MaxGlobal <= 0 || cfg.StreamLimit.MaxPerClient <= 0 {
		cfg.StreamLimit = defaultStreamLimitConfig()
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		handle:     handle,
		rpcToken:   cfg.Token,
		requireRPC: cfg.RequireToken,
		rpcLimiter: newRPCRateLimiter(cfg.RateLimit),
		streams:    newRPCStreamLimiter(cfg.StreamLimit),
		events:     newNotificationHub(cfg.HistoryLimit),
		logger:     slog.Default().With("component", "rpc"),
	}
	if s.rpcToken == "" {
		s.logger.Warn("WALLET_RPC_TOKEN is not set; RPC auth disabled")
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleRPCStream)
	return s, nil
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start subscribes to every engine event once so streams can fan them out.
func (s *Server) Start(ctx context.Context) error {
	s.listenOnce.Do(func() {
		s.listenErr = s.handle.Listen(ctx, nil, func(err error, result string) {
			if err != nil {
				s.logger.Warn("engine listener error", "error", err)
				return
			}
			var head struct {
				Event struct {
					Type string `json:"type"`
				} `json:"event"`
			}
			if err := json.Unmarshal([]byte(result), &head); err != nil {
				s.logger.Warn("undecodable engine event", "error", err)
				return
			}
			s.events.Publish(head.Event.Type, result)
		})
	})
	return s.listenErr
}

func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc server listening", "addr", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.events.Close()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		s.events.Close()
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRPC(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+tokenHeader)
	return true
}

func (s *Server) authorizeRPC(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" && !s.requireRPC {
		return true
	}
	token := s.extractRPCToken(r)
	if token != s.rpcToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) extractRPCToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(tokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

func requiresRPCToken() bool {
	if v, ok := parseBoolEnv("WALLET_REQUIRE_RPC_TOKEN"); ok {
		if !v && !isNonProdEnv() {
			// Fail-closed in production-like environments.
			return true
		}
		return v
	}
	return !isNonProdEnv()
}

func isNonProdEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("WALLET_ENV"))) {
	case "test", "testing", "dev", "development", "local":
		return true
	default:
		return false
	}
}

func isAllowedOrigin(raw string) bool {
	if raw == "null" {
		allowNull, _ := parseBoolEnv("WALLET_ALLOW_NULL_ORIGIN")
		return allowNull
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func parseBoolEnv(name string) (bool, bool) {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// resolveRPCToken reads WALLET_RPC_TOKEN; "auto" generates a fresh token and
// writes it to WALLET_RPC_TOKEN_FILE when set.
func resolveRPCToken() (string, error) {
	token := strings.TrimSpace(os.Getenv("WALLET_RPC_TOKEN"))
	rotate := strings.EqualFold(token, "auto")
	if !rotate {
		if v, ok := parseBoolEnv("WALLET_RPC_TOKEN_ROTATE_ON_START"); ok && v {
			rotate = true
		}
	}
	if !rotate {
		return token, nil
	}
	generated, err := GenerateRPCToken()
	if err != nil {
		return "", err
	}
	if err := persistRPCToken(generated); err != nil {
		return "", err
	}
	return generated, nil
}

func GenerateRPCToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "rpc_" + hex.EncodeToString(buf), nil
}

func persistRPCToken(token string) error {
	pathValue := strings.TrimSpace(os.Getenv("WALLET_RPC_TOKEN_FILE"))
	if pathValue == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(pathValue), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(pathValue, []byte(token), 0o600); err != nil {
		return fmt.Errorf("persist rpc token: %w", err)
	}
	return nil
}
