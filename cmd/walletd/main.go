package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-bridge/go-backend/internal/adapters/rpc"
	"wallet-bridge/go-backend/internal/config"
	"wallet-bridge/go-backend/internal/engine"
	_ "wallet-bridge/go-backend/internal/engine/local"
	_ "wallet-bridge/go-backend/internal/engine/remote"
	"wallet-bridge/go-backend/internal/platform/privacylog"
	"wallet-bridge/go-backend/pkg/models"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to walletd.yaml (optional)")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address (default "+rpc.DefaultRPCAddr+")")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Wallet-RPC-Token (optional)")
	storagePath := flag.String("storage-path", "", "Wallet storage path override")
	transport := flag.String("transport", "", "Engine transport override: local | remote")
	watch := flag.Bool("watch-config", true, "Re-apply client options when the config file changes")
	flag.Parse()
	if *showVersion {
		fmt.Printf("walletd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	setEnvIfSet("WALLET_RPC_ADDR", *rpcAddr)
	setEnvIfSet("WALLET_RPC_TOKEN", *rpcToken)
	setEnvIfSet("WALLET_STORAGE_PATH", *storagePath)
	setEnvIfSet("WALLET_ENGINE_TRANSPORT", *transport)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("walletd failed to load config", err)
	}
	logger := privacylog.NewLogger(os.Stderr, cfg.Log.Format, privacylog.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, *watch, logger); err != nil {
		fatal("walletd failed", err)
	}
	logger.Info("walletd stopped")
}

func run(ctx context.Context, cfg config.Config, configPath string, watch bool, logger *slog.Logger) error {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	handle, err := engine.Open(ctx, cfg.Engine.Transport, opts)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("engine close failed", "error", err)
		}
	}()

	rpcCfg, err := rpc.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	if rpcCfg.Addr == "" {
		rpcCfg.Addr = cfg.RPC.Addr
	}
	rpcCfg.HistoryLimit = cfg.RPC.HistoryLimit
	srv, err := rpc.NewServer(rpcCfg, handle)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to engine events: %w", err)
	}

	if cfg.Sync.Enabled {
		if err := startSync(ctx, handle, cfg.Sync.Interval); err != nil {
			logger.Warn("background sync not started", "error", err)
		}
	}
	if watch && configPath != "" {
		err := config.Watch(ctx, configPath, logger, func(next config.Config) {
			if err := applyClientOptions(ctx, handle, next.Client); err != nil {
				logger.Warn("client options not applied", "error", err)
			}
		})
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
	}

	logger.Info("walletd starting",
		"transport", cfg.Engine.Transport,
		"rpc_addr", rpcCfg.Addr,
		"version", version,
	)
	return srv.Run(ctx)
}

func startSync(ctx context.Context, handle engine.Handle, interval time.Duration) error {
	payload := models.StartBackgroundSyncPayload{}
	if interval > 0 {
		ms := uint64(interval / time.Millisecond)
		payload.IntervalInMilliseconds = &ms
	}
	return sendCommand(ctx, handle, models.Message{Cmd: models.CmdStartBackgroundSync, Payload: payload})
}

func applyClientOptions(ctx context.Context, handle engine.Handle, opts models.ClientOptions) error {
	if len(opts.Nodes) == 0 && opts.PrimaryNode == "" {
		return nil
	}
	return sendCommand(ctx, handle, models.Message{Cmd: models.CmdSetClientOptions, Payload: opts})
}

// sendCommand sends msg and turns an Error or Panic response into a Go error.
func sendCommand(ctx context.Context, handle engine.Handle, msg models.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	text, err := handle.SendMessage(ctx, string(raw))
	if err != nil {
		return err
	}
	resp, err := models.ParseResponse(text)
	if err != nil {
		return err
	}
	switch resp.Type {
	case models.RespError:
		var payload models.ErrorPayload
		if err := resp.Decode(&payload); err != nil {
			return err
		}
		return fmt.Errorf("%s: %s: %s", msg.Cmd, payload.Type, payload.Error)
	case models.RespPanic:
		return errors.New(msg.Cmd + ": engine panic")
	}
	return nil
}

func setEnvIfSet(key, value string) {
	if value != "" {
		_ = os.Setenv(key, value)
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
