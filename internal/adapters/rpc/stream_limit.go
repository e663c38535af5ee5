package rpc

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	rpcStreamMaxGlobalEnv    = "WALLET_RPC_STREAM_MAX_GLOBAL"
	rpcStreamMaxPerClientEnv = "WALLET_RPC_STREAM_MAX_PER_CLIENT"
)

type StreamLimitConfig struct {
	MaxGlobal    int `yaml:"max_global"`
	MaxPerClient int `yaml:"max_per_client"`
}

// rpcStreamLimiter caps concurrent event streams globally and per client.
type rpcStreamLimiter struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func defaultStreamLimitConfig() StreamLimitConfig {
	return StreamLimitConfig{MaxGlobal: 64, MaxPerClient: 4}
}

func loadRPCStreamLimitConfig() StreamLimitConfig {
	cfg := defaultStreamLimitConfig()
	if raw := strings.TrimSpace(os.Getenv(rpcStreamMaxGlobalEnv)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.MaxGlobal = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv(rpcStreamMaxPerClientEnv)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.MaxPerClient = parsed
		}
	}
	return cfg
}

func newRPCStreamLimiter(cfg StreamLimitConfig) *rpcStreamLimiter {
	return &rpcStreamLimiter{
		maxGlobal:    cfg.MaxGlobal,
		maxPerClient: cfg.MaxPerClient,
		byClient:     make(map[string]int),
	}
}

func (l *rpcStreamLimiter) acquire(clientKey string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global >= l.maxGlobal || l.byClient[clientKey] >= l.maxPerClient {
		return nil, false
	}
	l.global++
	l.byClient[clientKey]++
	var once sync.Once
	return func() {
		once.Do(func() { l.release(clientKey) })
	}, true
}

func (l *rpcStreamLimiter) release(clientKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global > 0 {
		l.global--
	}
	next := l.byClient[clientKey] - 1
	if next <= 0 {
		delete(l.byClient, clientKey)
		return
	}
	l.byClient[clientKey] = next
}
