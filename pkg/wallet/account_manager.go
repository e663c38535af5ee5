package wallet

import (
	"context"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/pkg/models"
)

// AccountManager exposes the wallet commands with typed results.
type AccountManager struct {
	handler *MessageHandler
}

func NewAccountManager(ctx context.Context, opts Options) (*AccountManager, error) {
	handler, err := NewMessageHandler(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &AccountManager{handler: handler}, nil
}

// NewAccountManagerWithHandler wraps an existing handler.
func NewAccountManagerWithHandler(handler *MessageHandler) *AccountManager {
	return &AccountManager{handler: handler}
}

func (m *AccountManager) Handler() *MessageHandler {
	return m.handler
}

func (m *AccountManager) Destroy() error {
	return m.handler.Destroy()
}

func (m *AccountManager) Listen(ctx context.Context, eventTypes []string, callback engine.Callback) error {
	return m.handler.Listen(ctx, eventTypes, callback)
}

func (m *AccountManager) CreateAccount(ctx context.Context, alias string) (*Account, error) {
	var meta models.Account
	if err := m.call(ctx, models.Message{
		Cmd:     models.CmdCreateAccount,
		Payload: models.CreateAccountPayload{Alias: alias},
	}, models.RespAccount, &meta); err != nil {
		return nil, err
	}
	return newAccount(m.handler, meta), nil
}

func (m *AccountManager) GetAccount(ctx context.Context, id models.AccountID) (*Account, error) {
	var meta models.Account
	if err := m.call(ctx, models.Message{Cmd: models.CmdGetAccount, Payload: id}, models.RespAccount, &meta); err != nil {
		return nil, err
	}
	return newAccount(m.handler, meta), nil
}

func (m *AccountManager) GetAccounts(ctx context.Context) ([]*Account, error) {
	var metas []models.Account
	if err := m.call(ctx, models.Message{Cmd: models.CmdGetAccounts}, models.RespAccounts, &metas); err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(metas))
	for _, meta := range metas {
		out = append(out, newAccount(m.handler, meta))
	}
	return out, nil
}

func (m *AccountManager) Backup(ctx context.Context, destination, password string) error {
	return m.call(ctx, models.Message{
		Cmd:     models.CmdBackup,
		Payload: models.BackupPayload{Destination: destination, Password: password},
	}, models.RespOk, nil)
}

func (m *AccountManager) RestoreBackup(ctx context.Context, source, password string) error {
	return m.call(ctx, models.Message{
		Cmd:     models.CmdRestoreBackup,
		Payload: models.RestoreBackupPayload{Source: source, Password: password},
	}, models.RespOk, nil)
}

func (m *AccountManager) ChangeStrongholdPassword(ctx context.Context, current, next string) error {
	return m.call(ctx, models.Message{
		Cmd:     models.CmdChangeStrongholdPassword,
		Payload: models.ChangeStrongholdPasswordPayload{CurrentPassword: current, NewPassword: next},
	}, models.RespOk, nil)
}

func (m *AccountManager) ClearStrongholdPassword(ctx context.Context) error {
	return m.call(ctx, models.Message{Cmd: models.CmdClearStrongholdPassword}, models.RespOk, nil)
}

func (m *AccountManager) IsStrongholdPasswordAvailable(ctx context.Context) (bool, error) {
	var available bool
	err := m.call(ctx, models.Message{Cmd: models.CmdIsStrongholdPasswordAvailable}, models.RespStrongholdPasswordIsAvailable, &available)
	return available, err
}

func (m *AccountManager) SetStrongholdPassword(ctx context.Context, password string) error {
	return m.call(ctx, models.Message{Cmd: models.CmdSetStrongholdPassword, Payload: password}, models.RespOk, nil)
}

// SetStrongholdPasswordClearInterval sets how long the password stays in memory; zero keeps it.
func (m *AccountManager) SetStrongholdPasswordClearInterval(ctx context.Context, interval time.Duration) error {
	return m.call(ctx, models.Message{
		Cmd:     models.CmdSetStrongholdPasswordClearInterval,
		Payload: uint64(interval / time.Millisecond),
	}, models.RespOk, nil)
}

func (m *AccountManager) GenerateMnemonic(ctx context.Context) (string, error) {
	var mnemonic string
	err := m.call(ctx, models.Message{Cmd: models.CmdGenerateMnemonic}, models.RespGeneratedMnemonic, &mnemonic)
	return mnemonic, err
}

func (m *AccountManager) VerifyMnemonic(ctx context.Context, mnemonic string) error {
	return m.call(ctx, models.Message{Cmd: models.CmdVerifyMnemonic, Payload: mnemonic}, models.RespOk, nil)
}

func (m *AccountManager) StoreMnemonic(ctx context.Context, mnemonic string) error {
	return m.call(ctx, models.Message{Cmd: models.CmdStoreMnemonic, Payload: mnemonic}, models.RespOk, nil)
}

func (m *AccountManager) SetClientOptions(ctx context.Context, opts models.ClientOptions) error {
	return m.call(ctx, models.Message{Cmd: models.CmdSetClientOptions, Payload: opts}, models.RespOk, nil)
}

// GetNodeInfo queries url, or the configured primary node when url is empty.
func (m *AccountManager) GetNodeInfo(ctx context.Context, url string, auth *models.NodeAuth) (models.NodeInfo, error) {
	var info models.NodeInfo
	err := m.call(ctx, models.Message{
		Cmd:     models.CmdGetNodeInfo,
		Payload: models.GetNodeInfoPayload{URL: url, Auth: auth},
	}, models.RespNodeInfo, &info)
	return info, err
}

func (m *AccountManager) StartBackgroundSync(ctx context.Context, opts *models.SyncOptions, interval time.Duration) error {
	payload := models.StartBackgroundSyncPayload{Options: opts}
	if interval > 0 {
		ms := uint64(interval / time.Millisecond)
		payload.IntervalInMilliseconds = &ms
	}
	return m.call(ctx, models.Message{Cmd: models.CmdStartBackgroundSync, Payload: payload}, models.RespOk, nil)
}

func (m *AccountManager) StopBackgroundSync(ctx context.Context) error {
	return m.call(ctx, models.Message{Cmd: models.CmdStopBackgroundSync}, models.RespOk, nil)
}

func (m *AccountManager) EmitTestEvent(ctx context.Context, event models.WalletEvent) error {
	return m.call(ctx, models.Message{Cmd: models.CmdEmitTestEvent, Payload: event}, models.RespOk, nil)
}

func (m *AccountManager) DeleteStorage(ctx context.Context) error {
	return m.call(ctx, models.Message{Cmd: models.CmdDeleteStorage}, models.RespOk, nil)
}

func (m *AccountManager) call(ctx context.Context, msg models.Message, want string, out any) error {
	text, err := m.handler.SendMessage(ctx, msg)
	if err != nil {
		return err
	}
	return decodeResponse(text, want, out)
}

func decodeResponse(text, want string, out any) error {
	resp, err := models.ParseResponse(text)
	if err != nil {
		return err
	}
	if err := responseError(resp); err != nil {
		return err
	}
	if err := expectType(resp, want); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}
