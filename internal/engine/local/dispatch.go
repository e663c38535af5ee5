package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-bridge/go-backend/internal/nodeclient"
	"wallet-bridge/go-backend/pkg/models"

	"github.com/tyler-smith/go-bip39"
)

const mnemonicEntropyBits = 256

func (e *Engine) dispatch(ctx context.Context, cmd string, payload json.RawMessage) (models.Response, error) {
	switch cmd {
	case models.CmdCreateAccount:
		var in models.CreateAccountPayload
		if err := decodeOptional(payload, &in); err != nil {
			return models.Response{}, err
		}
		acc, err := e.createAccount(in.Alias)
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespAccount, acc)

	case models.CmdGetAccount:
		var id models.AccountID
		if err := decodeRequired(payload, &id); err != nil {
			return models.Response{}, err
		}
		acc, err := e.getAccount(id)
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespAccount, acc)

	case models.CmdGetAccounts:
		return models.NewResponse(models.RespAccounts, e.listAccounts())

	case models.CmdCallAccountMethod:
		var in struct {
			AccountID models.AccountID `json:"accountId"`
			Method    struct {
				Name string          `json:"name"`
				Data json.RawMessage `json:"data"`
			} `json:"method"`
		}
		if err := decodeRequired(payload, &in); err != nil {
			return models.Response{}, err
		}
		return e.callAccountMethod(ctx, in.AccountID, in.Method.Name, in.Method.Data)

	case models.CmdBackup:
		var in models.BackupPayload
		if err := decodeRequired(payload, &in); err != nil {
			return models.Response{}, err
		}
		return okResponse(), e.backup(in.Destination, in.Password)

	case models.CmdRestoreBackup:
		var in models.RestoreBackupPayload
		if err := decodeRequired(payload, &in); err != nil {
			return models.Response{}, err
		}
		return okResponse(), e.restoreBackup(in.Source, in.Password)

	case models.CmdChangeStrongholdPassword:
		var in models.ChangeStrongholdPasswordPayload
		if err := decodeRequired(payload, &in); err != nil {
			return models.Response{}, err
		}
		secrets, err := e.secretManager()
		if err != nil {
			return models.Response{}, err
		}
		return okResponse(), secrets.ChangePassword(in.CurrentPassword, in.NewPassword)

	case models.CmdClearStrongholdPassword:
		secrets, err := e.secretManager()
		if err != nil {
			return models.Response{}, err
		}
		return okResponse(), secrets.ClearPassword()

	case models.CmdIsStrongholdPasswordAvailable:
		secrets, err := e.secretManager()
		if err != nil {
			return models.Response{}, err
		}
		available, err := secrets.PasswordAvailable()
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespStrongholdPasswordIsAvailable, available)

	case models.CmdSetStrongholdPassword:
		var password string
		if err := decodeRequired(payload, &password); err != nil {
			return models.Response{}, err
		}
		secrets, err := e.secretManager()
		if err != nil {
			return models.Response{}, err
		}
		return okResponse(), secrets.SetPassword(password)

	case models.CmdSetStrongholdPasswordClearInterval:
		var ms uint64
		if err := decodeOptional(payload, &ms); err != nil {
			return models.Response{}, err
		}
		secrets, err := e.secretManager()
		if err != nil {
			return models.Response{}, err
		}
		return okResponse(), secrets.SetClearInterval(time.Duration(ms) * time.Millisecond)

	case models.CmdStoreMnemonic:
		var mnemonic string
		if err := decodeRequired(payload, &mnemonic); err != nil {
			return models.Response{}, err
		}
		secrets, err := e.secretManager()
		if err != nil {
			return models.Response{}, err
		}
		return okResponse(), secrets.StoreMnemonic(mnemonic)

	case models.CmdGenerateMnemonic:
		entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
		if err != nil {
			return models.Response{}, err
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespGeneratedMnemonic, mnemonic)

	case models.CmdVerifyMnemonic:
		var mnemonic string
		if err := decodeRequired(payload, &mnemonic); err != nil {
			return models.Response{}, err
		}
		if !bip39.IsMnemonicValid(normalizeMnemonic(mnemonic)) {
			return models.Response{}, ErrInvalidMnemonic
		}
		return okResponse(), nil

	case models.CmdSetClientOptions:
		var opts models.ClientOptions
		if err := decodeRequired(payload, &opts); err != nil {
			return models.Response{}, err
		}
		return okResponse(), e.setClientOptions(opts)

	case models.CmdGetNodeInfo:
		var in models.GetNodeInfoPayload
		if err := decodeOptional(payload, &in); err != nil {
			return models.Response{}, err
		}
		info, err := e.nodeInfo(ctx, in)
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespNodeInfo, info)

	case models.CmdStartBackgroundSync:
		var in models.StartBackgroundSyncPayload
		if err := decodeOptional(payload, &in); err != nil {
			return models.Response{}, err
		}
		interval := defaultSyncInterval
		if in.IntervalInMilliseconds != nil && *in.IntervalInMilliseconds > 0 {
			interval = time.Duration(*in.IntervalInMilliseconds) * time.Millisecond
		}
		return okResponse(), e.startBackgroundSync(in.Options, interval)

	case models.CmdStopBackgroundSync:
		e.stopBackgroundSync()
		return okResponse(), nil

	case models.CmdEmitTestEvent:
		var evt models.WalletEvent
		if err := decodeRequired(payload, &evt); err != nil {
			return models.Response{}, err
		}
		if !models.IsKnownEventType(evt.Type) {
			return models.Response{}, fmt.Errorf("%w: %q", ErrUnknownEventType, evt.Type)
		}
		e.publish(0, evt)
		return okResponse(), nil

	case models.CmdDeleteStorage:
		return okResponse(), e.deleteStorage()

	default:
		return models.Response{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

func (e *Engine) secretManager() (secretManager, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.secrets == nil {
		return nil, ErrSecretManagerMissing
	}
	return e.secrets, nil
}

func (e *Engine) setClientOptions(opts models.ClientOptions) error {
	client, err := nodeclient.New(opts)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.CoinType != 0 && len(e.accounts) > 0 && opts.CoinType != e.coinType {
		return fmt.Errorf("%w: accounts use %d", ErrCoinTypeMismatch, e.coinType)
	}
	stored := cloneClientOptions(opts)
	e.clientOptions = &stored
	e.client = client
	return e.persistLocked()
}

func (e *Engine) nodeInfo(ctx context.Context, in models.GetNodeInfoPayload) (models.NodeInfo, error) {
	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()
	if client == nil {
		if in.URL == "" {
			return models.NodeInfo{}, ErrNoNodes
		}
		var err error
		client, err = nodeclient.New(models.ClientOptions{})
		if err != nil {
			return models.NodeInfo{}, err
		}
	}
	if in.URL != "" {
		return client.InfoAt(ctx, in.URL, in.Auth)
	}
	if len(client.Nodes()) == 0 {
		return models.NodeInfo{}, ErrNoNodes
	}
	return client.Info(ctx)
}

// deleteStorage drops every account and the persisted state. Secrets are
// kept; the stronghold snapshot is owned by its own path.
func (e *Engine) deleteStorage() error {
	e.stopBackgroundSync()
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Delete(); err != nil {
		return err
	}
	e.accounts = nil
	e.coinType = 0
	return nil
}

func decodeRequired(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	return decodeOptional(payload, v)
}

func decodeOptional(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
