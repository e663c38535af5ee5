// Package config loads the walletd yaml file, applies WALLET_* overrides and
// watches the file for client option changes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/pkg/models"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/walletd.yaml"

// Config is the merged daemon configuration.
type Config struct {
	Log    LogConfig
	Engine EngineConfig
	Client models.ClientOptions
	Sync   SyncConfig
	RPC    RPCConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type EngineConfig struct {
	Transport   string
	StoragePath string
	Endpoint    string
	// StrongholdPath selects a stronghold secret manager with this snapshot.
	StrongholdPath string
}

type SyncConfig struct {
	Enabled  bool
	Interval time.Duration
}

type RPCConfig struct {
	Addr         string
	HistoryLimit int
}

// FileConfig mirrors the yaml layout. Pointer fields distinguish unset from false.
type FileConfig struct {
	Log    FileLogConfig    `yaml:"log"`
	Engine FileEngineConfig `yaml:"engine"`
	Client FileClientConfig `yaml:"client"`
	Sync   FileSyncConfig   `yaml:"sync"`
	RPC    FileRPCConfig    `yaml:"rpc"`
}

type FileLogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FileEngineConfig struct {
	Transport      string `yaml:"transport"`
	StoragePath    string `yaml:"storagePath"`
	Endpoint       string `yaml:"endpoint"`
	StrongholdPath string `yaml:"strongholdPath"`
}

type FileClientConfig struct {
	Nodes       []string      `yaml:"nodes"`
	PrimaryNode string        `yaml:"primaryNode"`
	LocalPow    *bool         `yaml:"localPow"`
	APITimeout  time.Duration `yaml:"apiTimeout"`
	Bech32Hrp   string        `yaml:"bech32Hrp"`
	CoinType    uint32        `yaml:"coinType"`
}

type FileSyncConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type FileRPCConfig struct {
	Addr         string `yaml:"addr"`
	HistoryLimit int    `yaml:"historyLimit"`
}

func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "json"},
		Engine: EngineConfig{Transport: engine.TransportLocal},
		Client: models.ClientOptions{LocalPow: true},
		Sync:   SyncConfig{Interval: 7 * time.Second},
	}
}

// Load reads configPath, or DefaultPath when empty. A missing default file
// yields the defaults; a missing explicit file or a malformed one is an error.
func Load(configPath string) (Config, error) {
	cfg := Default()
	path := configPath
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
	case errors.Is(err, fs.ErrNotExist) && configPath == "":
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

func Merge(dst *Config, src FileConfig) {
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Engine.Transport != "" {
		dst.Engine.Transport = src.Engine.Transport
	}
	if src.Engine.StoragePath != "" {
		dst.Engine.StoragePath = src.Engine.StoragePath
	}
	if src.Engine.Endpoint != "" {
		dst.Engine.Endpoint = src.Engine.Endpoint
	}
	if src.Engine.StrongholdPath != "" {
		dst.Engine.StrongholdPath = src.Engine.StrongholdPath
	}
	if src.Client.Nodes != nil {
		dst.Client.Nodes = append([]string(nil), src.Client.Nodes...)
	}
	if src.Client.PrimaryNode != "" {
		dst.Client.PrimaryNode = src.Client.PrimaryNode
	}
	if src.Client.LocalPow != nil {
		dst.Client.LocalPow = *src.Client.LocalPow
	}
	if src.Client.APITimeout > 0 {
		dst.Client.APITimeoutMs = uint64(src.Client.APITimeout / time.Millisecond)
	}
	if src.Client.Bech32Hrp != "" {
		dst.Client.Bech32Hrp = src.Client.Bech32Hrp
	}
	if src.Client.CoinType != 0 {
		dst.Client.CoinType = src.Client.CoinType
	}
	if src.Sync.Enabled != nil {
		dst.Sync.Enabled = *src.Sync.Enabled
	}
	if src.Sync.Interval > 0 {
		dst.Sync.Interval = src.Sync.Interval
	}
	if src.RPC.Addr != "" {
		dst.RPC.Addr = src.RPC.Addr
	}
	if src.RPC.HistoryLimit > 0 {
		dst.RPC.HistoryLimit = src.RPC.HistoryLimit
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := envString("WALLET_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := envString("WALLET_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := envString("WALLET_ENGINE_TRANSPORT"); v != "" {
		cfg.Engine.Transport = v
	}
	if v := envString("WALLET_STORAGE_PATH"); v != "" {
		cfg.Engine.StoragePath = v
	}
	if v := envString("WALLET_ENGINE_ENDPOINT"); v != "" {
		cfg.Engine.Endpoint = v
	}
	if v := envString("WALLET_STRONGHOLD_PATH"); v != "" {
		cfg.Engine.StrongholdPath = v
	}
	if v := envString("WALLET_NODES"); v != "" {
		cfg.Client.Nodes = splitList(v)
	}
	if v := envString("WALLET_PRIMARY_NODE"); v != "" {
		cfg.Client.PrimaryNode = v
	}
	if v, ok := envBool("WALLET_SYNC_ENABLED"); ok {
		cfg.Sync.Enabled = v
	}
	if v := envString("WALLET_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Sync.Interval = d
		}
	}
	if v := envString("WALLET_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := envString("WALLET_RPC_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RPC.HistoryLimit = n
		}
	}
}

// EngineOptions renders the construction bundle for engine.Open.
func (c Config) EngineOptions() (engine.Options, error) {
	opts := engine.Options{
		StoragePath: c.Engine.StoragePath,
		Endpoint:    c.Engine.Endpoint,
	}
	if len(c.Client.Nodes) > 0 || c.Client.PrimaryNode != "" {
		raw, err := json.Marshal(c.Client)
		if err != nil {
			return engine.Options{}, fmt.Errorf("encode client options: %w", err)
		}
		opts.ClientOptions = string(raw)
	}
	if c.Engine.StrongholdPath != "" {
		raw, err := json.Marshal(models.SecretManager{
			Stronghold: &models.StrongholdOptions{SnapshotPath: c.Engine.StrongholdPath},
		})
		if err != nil {
			return engine.Options{}, fmt.Errorf("encode secret manager: %w", err)
		}
		opts.SecretManager = string(raw)
	}
	return opts, nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string) (bool, bool) {
	raw := envString(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
