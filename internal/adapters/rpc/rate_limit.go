package rpc

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"wallet-bridge/go-backend/internal/platform/ratelimiter"
)

const (
	rpcRateLimitEnabledEnv = "WALLET_RPC_RATE_LIMIT_ENABLED"
	rpcRateLimitRPSEnv     = "WALLET_RPC_RATE_LIMIT_RPS"
	rpcRateLimitBurstEnv   = "WALLET_RPC_RATE_LIMIT_BURST"
)

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// rpcRateLimiter limits send_message and friends per token or client ip.
type rpcRateLimiter struct {
	keys *ratelimiter.MapLimiter
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Enabled: true, RPS: 30, Burst: 60}
}

func loadRPCRateLimitConfig() RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	if env, ok := parseBoolEnv(rpcRateLimitEnabledEnv); ok {
		cfg.Enabled = env
	} else {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("WALLET_ENV"))) {
		case "test", "testing":
			cfg.Enabled = false
		}
	}
	if raw := strings.TrimSpace(os.Getenv(rpcRateLimitRPSEnv)); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			cfg.RPS = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv(rpcRateLimitBurstEnv)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.Burst = parsed
		}
	}
	return cfg
}

func newRPCRateLimiter(cfg RateLimitConfig) *rpcRateLimiter {
	if !cfg.Enabled {
		return nil
	}
	keys := ratelimiter.New(cfg.RPS, cfg.Burst, 10*time.Minute)
	if keys == nil {
		return nil
	}
	return &rpcRateLimiter{keys: keys}
}

// allow consumes one request for key; a refused request carries the retry delay.
func (l *rpcRateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	return l.keys.Take(key, now)
}

func rpcRateLimitKey(r *http.Request, token string) string {
	if strings.TrimSpace(token) != "" {
		return "token:" + token
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "ip:unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return "ip:" + remote
	}
	if strings.TrimSpace(host) == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}
