package local

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"wallet-bridge/go-backend/pkg/models"
)

var unsupportedMethods = map[string]struct{}{
	models.MethodSendAmount:       {},
	models.MethodSendNativeTokens: {},
	models.MethodSendNft:          {},
	models.MethodMintNfts:         {},
	models.MethodMintNativeToken:  {},
	models.MethodCollectOutputs:   {},
}

func (e *Engine) callAccountMethod(ctx context.Context, id models.AccountID, name string, data json.RawMessage) (models.Response, error) {
	if _, ok := unsupportedMethods[name]; ok {
		return models.Response{}, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	switch name {
	case models.MethodGenerateAddresses:
		var in models.GenerateAddressesPayload
		if err := decodeRequired(data, &in); err != nil {
			return models.Response{}, err
		}
		addresses, err := e.generateAddresses(id, in)
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespAddresses, addresses)

	case models.MethodSyncAccount:
		var opts models.SyncOptions
		if err := decodeOptional(data, &opts); err != nil {
			return models.Response{}, err
		}
		balance, err := e.syncAccount(ctx, id, opts)
		if err != nil {
			return models.Response{}, err
		}
		return models.NewResponse(models.RespBalance, balance)

	case models.MethodGetOutput:
		var in models.GetOutputPayload
		if err := decodeRequired(data, &in); err != nil {
			return models.Response{}, err
		}
		acc, err := e.getAccount(id)
		if err != nil {
			return models.Response{}, err
		}
		output, ok := acc.Outputs[in.OutputID]
		if !ok {
			return models.Response{Type: models.RespOutput, Payload: json.RawMessage("null")}, nil
		}
		return models.NewResponse(models.RespOutput, output)
	}

	acc, err := e.getAccount(id)
	if err != nil {
		return models.Response{}, err
	}
	switch name {
	case models.MethodListAddresses:
		addresses := make([]models.AccountAddress, 0, len(acc.PublicAddresses)+len(acc.InternalAddresses))
		addresses = append(addresses, acc.PublicAddresses...)
		addresses = append(addresses, acc.InternalAddresses...)
		return models.NewResponse(models.RespAddresses, addresses)
	case models.MethodListAddressesWithUnspentOutputs:
		return models.NewResponse(models.RespAddressesWithUnspentOutputs, acc.AddressesWithUnspentOutputs)
	case models.MethodGetBalance:
		return models.NewResponse(models.RespBalance, accountBalance(acc))
	case models.MethodListOutputs:
		return models.NewResponse(models.RespOutputs, sortedOutputs(acc.Outputs))
	case models.MethodListUnspentOutputs:
		return models.NewResponse(models.RespOutputs, sortedOutputs(acc.UnspentOutputs))
	case models.MethodListTransactions:
		return models.NewResponse(models.RespTransactions, sortedTransactions(acc.Transactions, nil))
	case models.MethodListPendingTransactions:
		pending := make(map[string]struct{}, len(acc.PendingTransactions))
		for _, id := range acc.PendingTransactions {
			pending[id] = struct{}{}
		}
		return models.NewResponse(models.RespTransactions, sortedTransactions(acc.Transactions, func(tx models.Transaction) bool {
			_, ok := pending[tx.TransactionID]
			return ok
		}))
	default:
		return models.Response{}, fmt.Errorf("%w: %q", ErrUnknownAccountMethod, name)
	}
}

// accountBalance sums unspent outputs; locked outputs count towards the total
// but not towards what is available.
func accountBalance(acc models.Account) models.Balance {
	locked := make(map[string]struct{}, len(acc.LockedOutputs))
	for _, id := range acc.LockedOutputs {
		locked[id] = struct{}{}
	}
	total := new(big.Int)
	available := new(big.Int)
	potentiallyLocked := make(map[string]bool)
	for id, output := range acc.UnspentOutputs {
		amount, ok := new(big.Int).SetString(output.Amount, 10)
		if !ok {
			potentiallyLocked[id] = true
			continue
		}
		total.Add(total, amount)
		if _, isLocked := locked[id]; isLocked {
			continue
		}
		available.Add(available, amount)
	}
	return models.Balance{
		BaseCoin: models.BaseCoinBalance{
			Total:     total.String(),
			Available: available.String(),
		},
		RequiredStorageDeposit:   "0",
		PotentiallyLockedOutputs: potentiallyLocked,
	}
}
