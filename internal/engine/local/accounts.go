package local

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wallet-bridge/go-backend/pkg/models"
)

const maxAddressesPerCall = 1000

func (e *Engine) coinTypeLocked() uint32 {
	if e.clientOptions != nil && e.clientOptions.CoinType != 0 {
		return e.clientOptions.CoinType
	}
	return models.DefaultCoinType
}

func (e *Engine) hrpLocked() string {
	if e.clientOptions != nil && strings.TrimSpace(e.clientOptions.Bech32Hrp) != "" {
		return e.clientOptions.Bech32Hrp
	}
	return models.DefaultBech32Hrp
}

// createAccount appends an account with its first public address. A blank
// alias defaults to the account index.
func (e *Engine) createAccount(alias string) (models.Account, error) {
	e.mu.RLock()
	secrets := e.secrets
	e.mu.RUnlock()
	if secrets == nil {
		return models.Account{}, ErrSecretManagerMissing
	}
	seed, err := secrets.Seed()
	if err != nil {
		return models.Account{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	coinType := e.coinTypeLocked()
	if len(e.accounts) > 0 && e.coinType != coinType {
		return models.Account{}, fmt.Errorf("%w: accounts use %d, client options %d", ErrCoinTypeMismatch, e.coinType, coinType)
	}
	index := uint32(len(e.accounts))
	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = strconv.FormatUint(uint64(index), 10)
	}
	for _, acc := range e.accounts {
		if acc.Alias == alias {
			return models.Account{}, fmt.Errorf("%w: %s", ErrAliasTaken, alias)
		}
	}
	address, err := deriveAddress(seed, e.hrpLocked(), addressPath{CoinType: coinType, Account: index})
	if err != nil {
		return models.Account{}, err
	}
	acc := models.Account{
		Index:                       index,
		CoinType:                    coinType,
		Alias:                       alias,
		PublicAddresses:             []models.AccountAddress{{Address: address}},
		InternalAddresses:           []models.AccountAddress{},
		AddressesWithUnspentOutputs: []models.AddressWithUnspentOutputs{},
		Outputs:                     map[string]models.OutputData{},
		LockedOutputs:               []string{},
		UnspentOutputs:              map[string]models.OutputData{},
		Transactions:                map[string]models.Transaction{},
		PendingTransactions:         []string{},
	}
	e.accounts = append(e.accounts, acc)
	e.coinType = coinType
	if err := e.persistLocked(); err != nil {
		e.accounts = e.accounts[:len(e.accounts)-1]
		return models.Account{}, err
	}
	return cloneAccount(acc), nil
}

func (e *Engine) getAccount(id models.AccountID) (models.Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, err := e.findAccountLocked(id)
	if err != nil {
		return models.Account{}, err
	}
	return cloneAccount(e.accounts[pos]), nil
}

func (e *Engine) listAccounts() []models.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Account, 0, len(e.accounts))
	for _, acc := range e.accounts {
		out = append(out, cloneAccount(acc))
	}
	return out
}

func (e *Engine) findAccountLocked(id models.AccountID) (int, error) {
	for i, acc := range e.accounts {
		if id.IsIndex() {
			if acc.Index == *id.Index {
				return i, nil
			}
			continue
		}
		if acc.Alias == id.Alias {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrAccountNotFound, id.String())
}

// generateAddresses derives amount new addresses after the last one of the
// requested chain.
func (e *Engine) generateAddresses(id models.AccountID, in models.GenerateAddressesPayload) ([]models.AccountAddress, error) {
	if in.Amount > maxAddressesPerCall {
		return nil, fmt.Errorf("%w: %d > %d", ErrAddressAmountTooLarge, in.Amount, maxAddressesPerCall)
	}
	internal := in.Options != nil && in.Options.Internal
	e.mu.RLock()
	secrets := e.secrets
	e.mu.RUnlock()
	if secrets == nil {
		return nil, ErrSecretManagerMissing
	}
	if in.Amount == 0 {
		return []models.AccountAddress{}, nil
	}
	seed, err := secrets.Seed()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.findAccountLocked(id)
	if err != nil {
		return nil, err
	}
	acc := &e.accounts[pos]
	chain := acc.PublicAddresses
	if internal {
		chain = acc.InternalAddresses
	}
	next := uint32(0)
	if len(chain) > 0 {
		next = chain[len(chain)-1].KeyIndex + 1
	}
	hrp := e.hrpLocked()
	generated := make([]models.AccountAddress, 0, in.Amount)
	for i := uint32(0); i < in.Amount; i++ {
		path := addressPath{CoinType: acc.CoinType, Account: acc.Index, Internal: internal, KeyIndex: next + i}
		address, err := deriveAddress(seed, hrp, path)
		if err != nil {
			return nil, err
		}
		generated = append(generated, models.AccountAddress{Address: address, KeyIndex: path.KeyIndex, Internal: internal})
	}
	prevPublic, prevInternal := acc.PublicAddresses, acc.InternalAddresses
	if internal {
		acc.InternalAddresses = append(append([]models.AccountAddress(nil), chain...), generated...)
	} else {
		acc.PublicAddresses = append(append([]models.AccountAddress(nil), chain...), generated...)
	}
	if err := e.persistLocked(); err != nil {
		acc.PublicAddresses, acc.InternalAddresses = prevPublic, prevInternal
		return nil, err
	}
	return generated, nil
}

func sortedOutputs(in map[string]models.OutputData) []models.OutputData {
	out := make([]models.OutputData, 0, len(in))
	for _, o := range in {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutputID < out[j].OutputID })
	return out
}

func sortedTransactions(in map[string]models.Transaction, keep func(models.Transaction) bool) []models.Transaction {
	out := make([]models.Transaction, 0, len(in))
	for _, tx := range in {
		if keep == nil || keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].TransactionID < out[j].TransactionID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
