package local

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wallet-bridge/go-backend/internal/securestore"
	"wallet-bridge/go-backend/pkg/models"
)

const (
	snapshotFileName = "wallet.snapshot"
	sqliteSuffix     = ".sqlite"
	storageSecretEnv = "WALLET_STORAGE_SECRET"
	storeKindMemory  = "memory"
	storeKindFile    = "file"
	storeKindSQLite  = "sqlite"
)

// walletState is everything the wallet persists between sessions.
type walletState struct {
	CoinType          uint32                `json:"coinType"`
	ClientOptions     *models.ClientOptions `json:"clientOptions,omitempty"`
	SecretManagerKind string                `json:"secretManagerKind,omitempty"`
	Accounts          []models.Account      `json:"accounts"`
}

// walletStore persists walletState. Load returns nil when nothing was saved yet.
type walletStore interface {
	Kind() string
	Load() (*walletState, error)
	Save(state walletState) error
	Delete() error
	Close() error
}

// openStore picks the backend from storagePath: empty keeps state in memory,
// a .sqlite suffix selects the sqlite store, anything else is a directory
// holding a snapshot file.
func openStore(storagePath string) (walletStore, error) {
	path := strings.TrimSpace(storagePath)
	switch {
	case path == "":
		return &memoryStore{}, nil
	case strings.HasSuffix(strings.ToLower(path), sqliteSuffix):
		return newSQLiteStore(path, os.Getenv(storageSecretEnv))
	default:
		return newFileStore(filepath.Join(path, snapshotFileName), os.Getenv(storageSecretEnv)), nil
	}
}

type memoryStore struct {
	mu    sync.Mutex
	state *walletState
}

func (s *memoryStore) Kind() string { return storeKindMemory }

func (s *memoryStore) Load() (*walletState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := cloneState(*s.state)
	return &cp, nil
}

func (s *memoryStore) Save(state walletState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneState(state)
	s.state = &cp
	return nil
}

func (s *memoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}

func (s *memoryStore) Close() error { return nil }

// fileStore writes the whole state as one JSON snapshot, sealed when a
// storage secret is configured.
type fileStore struct {
	mu     sync.Mutex
	path   string
	secret string
}

func newFileStore(path, secret string) *fileStore {
	return &fileStore{path: path, secret: secret}
}

func (s *fileStore) Kind() string { return storeKindFile }

func (s *fileStore) Load() (*walletState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := securestore.ReadFile(s.path, s.secret)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if errors.Is(err, securestore.ErrNotSealed) {
			// Snapshot written before a secret was configured.
			data, err = os.ReadFile(s.path)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var state walletState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *fileStore) Save(state walletState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return securestore.WriteJSON(s.path, s.secret, state)
}

func (s *fileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return securestore.RemoveFile(s.path)
}

func (s *fileStore) Close() error { return nil }

func cloneState(in walletState) walletState {
	out := in
	if in.ClientOptions != nil {
		opts := cloneClientOptions(*in.ClientOptions)
		out.ClientOptions = &opts
	}
	out.Accounts = make([]models.Account, len(in.Accounts))
	for i, acc := range in.Accounts {
		out.Accounts[i] = cloneAccount(acc)
	}
	return out
}

func cloneClientOptions(in models.ClientOptions) models.ClientOptions {
	out := in
	out.Nodes = append([]string(nil), in.Nodes...)
	return out
}

func cloneAccount(in models.Account) models.Account {
	out := in
	out.PublicAddresses = append([]models.AccountAddress(nil), in.PublicAddresses...)
	out.InternalAddresses = append([]models.AccountAddress(nil), in.InternalAddresses...)
	out.AddressesWithUnspentOutputs = make([]models.AddressWithUnspentOutputs, len(in.AddressesWithUnspentOutputs))
	for i, a := range in.AddressesWithUnspentOutputs {
		a.OutputIDs = append([]string(nil), a.OutputIDs...)
		out.AddressesWithUnspentOutputs[i] = a
	}
	out.Outputs = cloneOutputs(in.Outputs)
	out.UnspentOutputs = cloneOutputs(in.UnspentOutputs)
	out.LockedOutputs = append([]string(nil), in.LockedOutputs...)
	out.Transactions = make(map[string]models.Transaction, len(in.Transactions))
	for k, v := range in.Transactions {
		out.Transactions[k] = v
	}
	out.PendingTransactions = append([]string(nil), in.PendingTransactions...)
	return out
}

func cloneOutputs(in map[string]models.OutputData) map[string]models.OutputData {
	out := make(map[string]models.OutputData, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
