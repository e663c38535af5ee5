package local

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyler-smith/go-bip39"

	"wallet-bridge/go-backend/internal/nodeclient"
	"wallet-bridge/go-backend/internal/securestore"
	"wallet-bridge/go-backend/pkg/models"
)

const backupVersion = 1

type backupPayload struct {
	Version       int                   `json:"version"`
	ExportedAt    time.Time             `json:"exported_at"`
	CoinType      uint32                `json:"coin_type"`
	ClientOptions *models.ClientOptions `json:"client_options,omitempty"`
	Mnemonic      string                `json:"mnemonic,omitempty"`
	Accounts      []models.Account      `json:"accounts"`
}

// backup writes accounts and the mnemonic to destination, sealed with password.
func (e *Engine) backup(destination, password string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return fmt.Errorf("%w: backup destination is empty", ErrInvalidPayload)
	}
	if strings.TrimSpace(password) == "" {
		return ErrBackupPasswordRequired
	}
	e.mu.RLock()
	secrets := e.secrets
	payload := backupPayload{
		Version:    backupVersion,
		ExportedAt: e.now().UTC(),
		CoinType:   e.coinType,
		Accounts:   make([]models.Account, 0, len(e.accounts)),
	}
	if e.clientOptions != nil {
		opts := cloneClientOptions(*e.clientOptions)
		payload.ClientOptions = &opts
	}
	for _, acc := range e.accounts {
		payload.Accounts = append(payload.Accounts, cloneAccount(acc))
	}
	e.mu.RUnlock()

	if secrets != nil {
		mnemonic, err := secrets.exportMnemonic()
		switch {
		case err == nil:
			payload.Mnemonic = mnemonic
		case errors.Is(err, ErrMnemonicNotStored):
		default:
			return err
		}
	}
	if err := securestore.WriteJSON(destination, password, payload); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	e.logger.Info("backup written", "accounts", len(payload.Accounts))
	return nil
}

// restoreBackup replaces the wallet with the content of source. A backup with
// a mnemonic needs a configured secret manager to receive it.
func (e *Engine) restoreBackup(source, password string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("%w: backup source is empty", ErrInvalidPayload)
	}
	if strings.TrimSpace(password) == "" {
		return ErrBackupPasswordRequired
	}
	var payload backupPayload
	if err := securestore.ReadJSON(source, password, &payload); err != nil {
		if errors.Is(err, securestore.ErrAuthFailed) {
			return fmt.Errorf("%w: backup", ErrInvalidPassword)
		}
		return fmt.Errorf("read backup: %w", err)
	}
	if payload.Version != backupVersion {
		return fmt.Errorf("%w: backup version %d", ErrInvalidPayload, payload.Version)
	}

	// Everything that can be checked is checked before the wallet changes.
	mnemonic := normalizeMnemonic(payload.Mnemonic)
	if mnemonic != "" && !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	var restoredClient *nodeclient.Client
	if payload.ClientOptions != nil {
		client, err := nodeclient.New(*payload.ClientOptions)
		if err != nil {
			return err
		}
		restoredClient = client
	}

	e.stopBackgroundSync()
	e.mu.Lock()
	defer e.mu.Unlock()
	if mnemonic != "" && e.secrets == nil {
		return ErrSecretManagerMissing
	}
	prevAccounts, prevCoinType := e.accounts, e.coinType
	prevOptions, prevClient := e.clientOptions, e.client
	rollback := func() {
		e.accounts, e.coinType = prevAccounts, prevCoinType
		e.clientOptions, e.client = prevOptions, prevClient
	}

	e.accounts = payload.Accounts
	e.coinType = payload.CoinType
	if e.clientOptions == nil && restoredClient != nil {
		e.clientOptions = payload.ClientOptions
		e.client = restoredClient
	}
	if err := e.persistLocked(); err != nil {
		rollback()
		return err
	}
	// The mnemonic goes last: once it is replaced, the old accounts no longer
	// match the seed.
	if mnemonic != "" {
		if err := e.secrets.importMnemonic(mnemonic); err != nil {
			rollback()
			if perr := e.persistLocked(); perr != nil {
				e.logger.Error("restore rollback failed", "error", perr)
			}
			return err
		}
	}
	e.logger.Info("backup restored", "accounts", len(payload.Accounts))
	return nil
}
