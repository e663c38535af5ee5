package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/platform/privacylog"
	"wallet-bridge/go-backend/pkg/models"
	"wallet-bridge/go-backend/pkg/wallet"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitEngineFailed = 20
	defaultEndpoint  = "http://127.0.0.1:8797"
	defaultTimeout   = 30 * time.Second
)

type globalFlags struct {
	transport   string
	endpoint    string
	token       string
	storagePath string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}
	cmd, args := os.Args[1], os.Args[2:]
	run, ok := commands[cmd]
	if !ok {
		printUsage()
		os.Exit(exitInvalidInput)
	}
	if err := run(args); err != nil {
		writeStderrln(err.Error(), exitEngineFailed)
	}
	os.Exit(exitOK)
}

var commands = map[string]func(args []string) error{
	"accounts":         runAccounts,
	"create-account":   runCreateAccount,
	"addresses":        runAddresses,
	"generate-address": runGenerateAddress,
	"balance":          runBalance,
	"sync":             runSync,
	"outputs":          runOutputs,
	"mnemonic":         runMnemonic,
	"node-info":        runNodeInfo,
	"listen":           runListen,
}

func newFlagSet(name string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	g := &globalFlags{}
	fs.StringVar(&g.transport, "transport", envOr("WALLET_ENGINE_TRANSPORT", engine.TransportRemote), "engine transport: remote | local")
	fs.StringVar(&g.endpoint, "endpoint", envOr("WALLET_RPC_ENDPOINT", defaultEndpoint), "walletd endpoint for the remote transport")
	fs.StringVar(&g.token, "token", os.Getenv("WALLET_RPC_TOKEN"), "walletd RPC token")
	fs.StringVar(&g.storagePath, "storage-path", os.Getenv("WALLET_STORAGE_PATH"), "storage path for the local transport")
	return fs, g
}

func openManager(ctx context.Context, g *globalFlags) (*wallet.AccountManager, error) {
	return wallet.NewAccountManager(ctx, wallet.Options{
		Transport:   g.transport,
		Endpoint:    g.endpoint,
		Token:       g.token,
		StoragePath: g.storagePath,
		Logger:      privacylog.NewLogger(os.Stderr, "text", privacylog.ParseLevel(os.Getenv("WALLET_LOG_LEVEL"))),
	})
}

// withManager opens a manager, runs fn with a bounded context and releases the handle.
func withManager(g *globalFlags, fn func(ctx context.Context, m *wallet.AccountManager) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	m, err := openManager(ctx, g)
	if err != nil {
		return err
	}
	defer m.Destroy()
	return fn(ctx, m)
}

func withAccount(fs *flag.FlagSet, g *globalFlags, fn func(ctx context.Context, a *wallet.Account) error) error {
	if fs.NArg() != 1 {
		return fmt.Errorf("%s requires exactly one account alias or index", fs.Name())
	}
	id := parseAccountID(fs.Arg(0))
	return withManager(g, func(ctx context.Context, m *wallet.AccountManager) error {
		account, err := m.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, account)
	})
}

func runAccounts(args []string) error {
	fs, g := newFlagSet("accounts")
	_ = fs.Parse(args)
	return withManager(g, func(ctx context.Context, m *wallet.AccountManager) error {
		accounts, err := m.GetAccounts(ctx)
		if err != nil {
			return err
		}
		out := make([]map[string]any, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, map[string]any{"index": a.Index(), "alias": a.Alias()})
		}
		return printJSON(out)
	})
}

func runCreateAccount(args []string) error {
	fs, g := newFlagSet("create-account")
	alias := fs.String("alias", "", "account alias (defaults to the index)")
	_ = fs.Parse(args)
	return withManager(g, func(ctx context.Context, m *wallet.AccountManager) error {
		account, err := m.CreateAccount(ctx, *alias)
		if err != nil {
			return err
		}
		return printJSON(account.Meta())
	})
}

func runAddresses(args []string) error {
	fs, g := newFlagSet("addresses")
	unspent := fs.Bool("unspent", false, "only addresses holding unspent outputs")
	_ = fs.Parse(args)
	return withAccount(fs, g, func(ctx context.Context, a *wallet.Account) error {
		if *unspent {
			addrs, err := a.ListAddressesWithUnspentOutputs(ctx)
			if err != nil {
				return err
			}
			return printJSON(addrs)
		}
		addrs, err := a.ListAddresses(ctx)
		if err != nil {
			return err
		}
		return printJSON(addrs)
	})
}

func runGenerateAddress(args []string) error {
	fs, g := newFlagSet("generate-address")
	amount := fs.Uint("amount", 1, "number of addresses")
	internal := fs.Bool("internal", false, "derive change addresses")
	_ = fs.Parse(args)
	return withAccount(fs, g, func(ctx context.Context, a *wallet.Account) error {
		addrs, err := a.GenerateAddresses(ctx, uint32(*amount), &models.GenerateAddressOptions{Internal: *internal})
		if err != nil {
			return err
		}
		return printJSON(addrs)
	})
}

func runBalance(args []string) error {
	fs, g := newFlagSet("balance")
	_ = fs.Parse(args)
	return withAccount(fs, g, func(ctx context.Context, a *wallet.Account) error {
		balance, err := a.GetBalance(ctx)
		if err != nil {
			return err
		}
		return printJSON(balance)
	})
}

func runSync(args []string) error {
	fs, g := newFlagSet("sync")
	basic := fs.Bool("basic-only", false, "skip change addresses")
	_ = fs.Parse(args)
	return withAccount(fs, g, func(ctx context.Context, a *wallet.Account) error {
		balance, err := a.Sync(ctx, &models.SyncOptions{SyncOnlyMostBasic: *basic})
		if err != nil {
			return err
		}
		return printJSON(balance)
	})
}

func runOutputs(args []string) error {
	fs, g := newFlagSet("outputs")
	unspent := fs.Bool("unspent", false, "only unspent outputs")
	_ = fs.Parse(args)
	return withAccount(fs, g, func(ctx context.Context, a *wallet.Account) error {
		list := a.ListOutputs
		if *unspent {
			list = a.ListUnspentOutputs
		}
		outputs, err := list(ctx)
		if err != nil {
			return err
		}
		return printJSON(outputs)
	})
}

func runMnemonic(args []string) error {
	fs, g := newFlagSet("mnemonic")
	verify := fs.String("verify", "", "verify this mnemonic instead of generating one")
	_ = fs.Parse(args)
	return withManager(g, func(ctx context.Context, m *wallet.AccountManager) error {
		if strings.TrimSpace(*verify) != "" {
			if err := m.VerifyMnemonic(ctx, *verify); err != nil {
				return err
			}
			writeStdoutln(exitEngineFailed, "valid")
			return nil
		}
		mnemonic, err := m.GenerateMnemonic(ctx)
		if err != nil {
			return err
		}
		writeStdoutln(exitEngineFailed, mnemonic)
		return nil
	})
}

func runNodeInfo(args []string) error {
	fs, g := newFlagSet("node-info")
	url := fs.String("url", "", "query this node instead of the configured ones")
	_ = fs.Parse(args)
	return withManager(g, func(ctx context.Context, m *wallet.AccountManager) error {
		info, err := m.GetNodeInfo(ctx, *url, nil)
		if err != nil {
			return err
		}
		return printJSON(info)
	})
}

// runListen prints events until interrupted; it does not use the bounded context.
func runListen(args []string) error {
	fs, g := newFlagSet("listen")
	events := fs.String("events", "", "comma separated event types (all when empty)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	m, err := openManager(ctx, g)
	if err != nil {
		return err
	}
	defer m.Destroy()

	var filter []string
	for _, part := range strings.Split(*events, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter = append(filter, part)
		}
	}
	err = m.Listen(ctx, filter, func(err error, result string) {
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "listener:", err)
			return
		}
		writeStdoutln(exitEngineFailed, result)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func parseAccountID(raw string) models.AccountID {
	if index, err := strconv.ParseUint(raw, 10, 32); err == nil {
		return models.AccountIndex(uint32(index))
	}
	return models.AccountAlias(raw)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln(exitInvalidInput, "walletctl <command> [flags] [account]")
	writeStdoutln(exitInvalidInput, "commands:")
	writeStdoutln(exitInvalidInput, "  accounts")
	writeStdoutln(exitInvalidInput, "  create-account   [--alias name]")
	writeStdoutln(exitInvalidInput, "  addresses        [--unspent] <account>")
	writeStdoutln(exitInvalidInput, "  generate-address [--amount n] [--internal] <account>")
	writeStdoutln(exitInvalidInput, "  balance          <account>")
	writeStdoutln(exitInvalidInput, "  sync             [--basic-only] <account>")
	writeStdoutln(exitInvalidInput, "  outputs          [--unspent] <account>")
	writeStdoutln(exitInvalidInput, "  mnemonic         [--verify words]")
	writeStdoutln(exitInvalidInput, "  node-info        [--url node]")
	writeStdoutln(exitInvalidInput, "  listen           [--events NewOutput,SpentOutput]")
	writeStdoutln(exitInvalidInput, "common flags: --transport remote|local --endpoint url --token t --storage-path path")
}

func writeStdoutln(exitCode int, line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
