package local

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"wallet-bridge/go-backend/internal/securestore"
	"wallet-bridge/go-backend/pkg/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS wallet_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	account_index INTEGER PRIMARY KEY,
	alias         TEXT NOT NULL UNIQUE,
	data          TEXT NOT NULL
);
`

const (
	metaCoinType          = "coin_type"
	metaClientOptions     = "client_options"
	metaSecretManagerKind = "secret_manager_kind"
	metaRecordKey         = "record_key"
)

// sqliteStore keeps one row per account so large wallets are not rewritten
// as a single blob. With a storage secret, account rows and client options
// are sealed under a key whose description lives in wallet_meta.
type sqliteStore struct {
	mu     sync.Mutex
	path   string
	secret string
	sealer *securestore.RecordSealer
	db     *sql.DB
}

func newSQLiteStore(path, secret string) (*sqliteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	if err := ensurePrivateFile(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &sqliteStore{path: path, secret: secret, db: db}, nil
}

func ensurePrivateFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create db file: %w", err)
	}
	return f.Close()
}

func (s *sqliteStore) Kind() string { return storeKindSQLite }

func (s *sqliteStore) Load() (*walletState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite store is closed")
	}
	meta := make(map[string]string)
	rows, err := s.db.Query(`SELECT key, value FROM wallet_meta`)
	if err != nil {
		return nil, fmt.Errorf("query wallet meta: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			_ = rows.Close()
			return nil, err
		}
		meta[key] = value
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}

	if err := s.openSealerLocked(meta[metaRecordKey]); err != nil {
		return nil, err
	}

	state := &walletState{SecretManagerKind: meta[metaSecretManagerKind]}
	if raw, ok := meta[metaCoinType]; ok {
		coinType, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("decode coin type: %w", err)
		}
		state.CoinType = uint32(coinType)
	}
	if raw, ok := meta[metaClientOptions]; ok && raw != "" {
		var opts models.ClientOptions
		if err := s.decodeLocked(raw, &opts); err != nil {
			return nil, fmt.Errorf("decode client options: %w", err)
		}
		state.ClientOptions = &opts
	}

	accRows, err := s.db.Query(`SELECT data FROM accounts ORDER BY account_index`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer accRows.Close()
	for accRows.Next() {
		var raw string
		if err := accRows.Scan(&raw); err != nil {
			return nil, err
		}
		var acc models.Account
		if err := s.decodeLocked(raw, &acc); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		state.Accounts = append(state.Accounts, acc)
	}
	return state, accRows.Err()
}

func (s *sqliteStore) Save(state walletState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("sqlite store is closed")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	recordKey, err := s.prepareSealerLocked(tx)
	if err != nil {
		return err
	}
	clientOptions := ""
	if state.ClientOptions != nil {
		clientOptions, err = s.encodeLocked(state.ClientOptions)
		if err != nil {
			return err
		}
	}
	meta := map[string]string{
		metaCoinType:          strconv.FormatUint(uint64(state.CoinType), 10),
		metaClientOptions:     clientOptions,
		metaSecretManagerKind: state.SecretManagerKind,
	}
	if recordKey != "" {
		meta[metaRecordKey] = recordKey
	} else if _, err := tx.Exec(`DELETE FROM wallet_meta WHERE key = ?`, metaRecordKey); err != nil {
		return fmt.Errorf("save %s: %w", metaRecordKey, err)
	}
	for key, value := range meta {
		if _, err := tx.Exec(`INSERT INTO wallet_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM accounts`); err != nil {
		return err
	}
	for _, acc := range state.Accounts {
		data, err := s.encodeLocked(acc)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO accounts (account_index, alias, data) VALUES (?, ?, ?)`,
			acc.Index, acc.Alias, data); err != nil {
			return fmt.Errorf("save account %d: %w", acc.Index, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("sqlite store is closed")
	}
	for _, stmt := range []string{`DELETE FROM accounts`, `DELETE FROM wallet_meta`} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("delete storage: %w", err)
		}
	}
	s.sealer = nil
	return nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// openSealerLocked rebuilds the sealer from the stored key description.
func (s *sqliteStore) openSealerLocked(raw string) error {
	if raw == "" || s.sealer != nil {
		return nil
	}
	if s.secret == "" {
		return fmt.Errorf("sqlite store is sealed: %w", securestore.ErrEmptyPassword)
	}
	var key securestore.RecordKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return fmt.Errorf("decode record key: %w", err)
	}
	sealer, err := securestore.OpenRecordKey(s.secret, key)
	if err != nil {
		return fmt.Errorf("open record key: %w", err)
	}
	s.sealer = sealer
	return nil
}

// prepareSealerLocked makes sure a sealer exists when a secret is configured
// and returns the key description to store, or "" when rows stay plain.
func (s *sqliteStore) prepareSealerLocked(tx *sql.Tx) (string, error) {
	if s.secret == "" {
		s.sealer = nil
		return "", nil
	}
	var stored string
	err := tx.QueryRow(`SELECT value FROM wallet_meta WHERE key = ?`, metaRecordKey).Scan(&stored)
	switch {
	case err == nil:
		if err := s.openSealerLocked(stored); err != nil {
			return "", err
		}
		return stored, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("query record key: %w", err)
	}
	sealer, key, err := securestore.NewRecordKey(s.secret, securestore.DefaultKDFParams)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	s.sealer = sealer
	return string(raw), nil
}

func (s *sqliteStore) encodeLocked(v any) (string, error) {
	if s.sealer != nil {
		return s.sealer.SealJSON(v)
	}
	raw, err := json.Marshal(v)
	return string(raw), err
}

// decodeLocked reads a sealed or plain column. Plain values written before a
// secret was configured are still accepted.
func (s *sqliteStore) decodeLocked(field string, v any) error {
	if !securestore.IsSealedRecord(field) {
		return json.Unmarshal([]byte(field), v)
	}
	if s.sealer == nil {
		return fmt.Errorf("sqlite store is sealed: %w", securestore.ErrEmptyPassword)
	}
	plain, err := s.sealer.Open(field)
	if err != nil {
		return err
	}
	defer securestore.Zero(plain)
	return json.Unmarshal(plain, v)
}
