package wallet

import (
	"context"
	"sync"

	"wallet-bridge/go-backend/pkg/models"
)

// Account calls account methods on the account it was loaded for.
type Account struct {
	handler *MessageHandler

	mu   sync.RWMutex
	meta models.Account
}

func newAccount(handler *MessageHandler, meta models.Account) *Account {
	return &Account{handler: handler, meta: meta}
}

// Meta returns the account data as of the last refresh.
func (a *Account) Meta() models.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.meta
}

func (a *Account) Index() uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.meta.Index
}

func (a *Account) Alias() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.meta.Alias
}

// Refresh reloads the account data from the engine.
func (a *Account) Refresh(ctx context.Context) error {
	text, err := a.handler.SendMessage(ctx, models.Message{
		Cmd:     models.CmdGetAccount,
		Payload: models.AccountIndex(a.Index()),
	})
	if err != nil {
		return err
	}
	var meta models.Account
	if err := decodeResponse(text, models.RespAccount, &meta); err != nil {
		return err
	}
	a.mu.Lock()
	a.meta = meta
	a.mu.Unlock()
	return nil
}

func (a *Account) GenerateAddresses(ctx context.Context, amount uint32, opts *models.GenerateAddressOptions) ([]models.AccountAddress, error) {
	var out []models.AccountAddress
	err := a.call(ctx, models.MethodGenerateAddresses, models.GenerateAddressesPayload{Amount: amount, Options: opts}, models.RespGeneratedAddress, &out)
	return out, err
}

func (a *Account) ListAddresses(ctx context.Context) ([]models.AccountAddress, error) {
	var out []models.AccountAddress
	err := a.call(ctx, models.MethodListAddresses, nil, models.RespAddresses, &out)
	return out, err
}

func (a *Account) ListAddressesWithUnspentOutputs(ctx context.Context) ([]models.AddressWithUnspentOutputs, error) {
	var out []models.AddressWithUnspentOutputs
	err := a.call(ctx, models.MethodListAddressesWithUnspentOutputs, nil, models.RespAddressesWithUnspentOutputs, &out)
	return out, err
}

func (a *Account) GetBalance(ctx context.Context) (models.Balance, error) {
	var out models.Balance
	err := a.call(ctx, models.MethodGetBalance, nil, models.RespBalance, &out)
	return out, err
}

// Sync synchronizes the account with the node and returns the new balance.
func (a *Account) Sync(ctx context.Context, opts *models.SyncOptions) (models.Balance, error) {
	var out models.Balance
	var data any
	if opts != nil {
		data = opts
	}
	err := a.call(ctx, models.MethodSyncAccount, data, models.RespBalance, &out)
	return out, err
}

func (a *Account) ListOutputs(ctx context.Context) ([]models.OutputData, error) {
	var out []models.OutputData
	err := a.call(ctx, models.MethodListOutputs, nil, models.RespOutputs, &out)
	return out, err
}

func (a *Account) ListUnspentOutputs(ctx context.Context) ([]models.OutputData, error) {
	var out []models.OutputData
	err := a.call(ctx, models.MethodListUnspentOutputs, nil, models.RespOutputs, &out)
	return out, err
}

// GetOutput returns nil when the account does not know outputID.
func (a *Account) GetOutput(ctx context.Context, outputID string) (*models.OutputData, error) {
	var out *models.OutputData
	err := a.call(ctx, models.MethodGetOutput, models.GetOutputPayload{OutputID: outputID}, models.RespOutput, &out)
	return out, err
}

func (a *Account) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	var out []models.Transaction
	err := a.call(ctx, models.MethodListTransactions, nil, models.RespTransactions, &out)
	return out, err
}

func (a *Account) ListPendingTransactions(ctx context.Context) ([]models.Transaction, error) {
	var out []models.Transaction
	err := a.call(ctx, models.MethodListPendingTransactions, nil, models.RespTransactions, &out)
	return out, err
}

func (a *Account) call(ctx context.Context, name string, data any, want string, out any) error {
	text, err := a.handler.CallAccountMethod(ctx, models.AccountIndex(a.Index()), models.AccountMethod{Name: name, Data: data})
	if err != nil {
		return err
	}
	return decodeResponse(text, want, out)
}
