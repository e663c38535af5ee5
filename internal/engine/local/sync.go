package local

import (
	"context"
	"errors"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/metrics"
	"wallet-bridge/go-backend/internal/nodeclient"
	"wallet-bridge/go-backend/pkg/models"
)

const (
	defaultSyncInterval = 7 * time.Second
	inclusionConfirmed  = "Confirmed"
)

// syncResult is what the network reported for one account.
type syncResult struct {
	newOutputs []models.OutputData
	spent      []string
}

// syncAccount refreshes the outputs of one account from the nodes and emits
// NewOutput and SpentOutput events for the changes.
func (e *Engine) syncAccount(ctx context.Context, id models.AccountID, opts models.SyncOptions) (models.Balance, error) {
	balance, err := e.syncAccountOnce(ctx, id, opts)
	if err != nil {
		metrics.SyncRun(metrics.OutcomeError)
		return models.Balance{}, err
	}
	metrics.SyncRun(metrics.OutcomeOk)
	return balance, nil
}

func (e *Engine) syncAccountOnce(ctx context.Context, id models.AccountID, opts models.SyncOptions) (models.Balance, error) {
	e.mu.RLock()
	client := e.client
	pos, err := e.findAccountLocked(id)
	if err != nil {
		e.mu.RUnlock()
		return models.Balance{}, err
	}
	acc := cloneAccount(e.accounts[pos])
	e.mu.RUnlock()
	if client == nil || len(client.Nodes()) == 0 {
		return models.Balance{}, ErrNoNodes
	}

	result, err := fetchAccountChanges(ctx, client, acc, opts)
	if err != nil {
		return models.Balance{}, err
	}

	e.mu.Lock()
	pos, err = e.findAccountLocked(models.AccountIndex(acc.Index))
	if err != nil {
		e.mu.Unlock()
		return models.Balance{}, err
	}
	current := &e.accounts[pos]
	prev := cloneAccount(*current)
	newTransactions := applySyncResult(current, result, e.now())
	if err := e.persistLocked(); err != nil {
		e.accounts[pos] = prev
		e.mu.Unlock()
		return models.Balance{}, err
	}
	balance := accountBalance(*current)
	index := current.Index
	e.mu.Unlock()

	for i := range result.newOutputs {
		output := result.newOutputs[i]
		e.publish(index, models.WalletEvent{Type: models.EventNewOutput, Output: &output})
	}
	for _, outputID := range result.spent {
		output := prev.Outputs[outputID]
		output.IsSpent = true
		output.Metadata.IsSpent = true
		e.publish(index, models.WalletEvent{Type: models.EventSpentOutput, Output: &output})
	}
	for _, txID := range newTransactions {
		e.publish(index, models.WalletEvent{
			Type:          models.EventTransactionInclusion,
			TransactionID: txID,
			Inclusion:     inclusionConfirmed,
		})
	}
	return balance, nil
}

// fetchAccountChanges talks to the nodes without holding the engine lock.
func fetchAccountChanges(ctx context.Context, client *nodeclient.Client, acc models.Account, opts models.SyncOptions) (syncResult, error) {
	addresses := make([]models.AccountAddress, 0, len(acc.PublicAddresses)+len(acc.InternalAddresses))
	addresses = append(addresses, acc.PublicAddresses...)
	if !opts.SyncOnlyMostBasic {
		addresses = append(addresses, acc.InternalAddresses...)
	}

	var result syncResult
	seen := make(map[string]struct{})
	for _, address := range addresses {
		ids, err := client.BasicOutputIDs(ctx, address.Address)
		if err != nil {
			return syncResult{}, err
		}
		for _, outputID := range ids {
			seen[outputID] = struct{}{}
			if _, known := acc.Outputs[outputID]; known {
				continue
			}
			resp, err := client.Output(ctx, outputID)
			if err != nil {
				return syncResult{}, err
			}
			if resp.Metadata.IsSpent {
				continue
			}
			result.newOutputs = append(result.newOutputs, models.OutputData{
				OutputID:   outputID,
				Metadata:   resp.Metadata,
				Amount:     resp.Output.Amount,
				Address:    address.Address,
				KeyIndex:   address.KeyIndex,
				Internal:   address.Internal,
				OutputType: resp.Output.Type,
			})
		}
	}

	for _, output := range sortedOutputs(acc.UnspentOutputs) {
		if _, ok := seen[output.OutputID]; ok {
			continue
		}
		resp, err := client.Output(ctx, output.OutputID)
		switch {
		case errors.Is(err, nodeclient.ErrNotFound):
		case err != nil:
			return syncResult{}, err
		case !resp.Metadata.IsSpent:
			continue
		}
		result.spent = append(result.spent, output.OutputID)
	}
	return result, nil
}

// applySyncResult updates acc in place and returns the ids of transactions
// seen for the first time.
func applySyncResult(acc *models.Account, result syncResult, now time.Time) []string {
	if acc.Outputs == nil {
		acc.Outputs = map[string]models.OutputData{}
	}
	if acc.UnspentOutputs == nil {
		acc.UnspentOutputs = map[string]models.OutputData{}
	}
	if acc.Transactions == nil {
		acc.Transactions = map[string]models.Transaction{}
	}
	used := make(map[string]struct{})
	var newTransactions []string
	for _, output := range result.newOutputs {
		acc.Outputs[output.OutputID] = output
		acc.UnspentOutputs[output.OutputID] = output
		used[output.Address] = struct{}{}
		txID := output.Metadata.TransactionID
		if txID == "" {
			continue
		}
		if _, ok := acc.Transactions[txID]; ok {
			continue
		}
		ts := now
		if output.Metadata.MilestoneTimestampBooked > 0 {
			ts = time.Unix(int64(output.Metadata.MilestoneTimestampBooked), 0).UTC()
		}
		acc.Transactions[txID] = models.Transaction{
			TransactionID:  txID,
			BlockID:        output.Metadata.BlockID,
			InclusionState: inclusionConfirmed,
			Timestamp:      ts,
			Incoming:       true,
		}
		newTransactions = append(newTransactions, txID)
	}
	for _, outputID := range result.spent {
		output := acc.Outputs[outputID]
		output.IsSpent = true
		output.Metadata.IsSpent = true
		acc.Outputs[outputID] = output
		delete(acc.UnspentOutputs, outputID)
		acc.LockedOutputs = removeString(acc.LockedOutputs, outputID)
	}
	markUsed(acc.PublicAddresses, used)
	markUsed(acc.InternalAddresses, used)
	acc.AddressesWithUnspentOutputs = addressesWithUnspent(*acc)
	return newTransactions
}

func markUsed(addresses []models.AccountAddress, used map[string]struct{}) {
	for i := range addresses {
		if _, ok := used[addresses[i].Address]; ok {
			addresses[i].Used = true
		}
	}
}

func addressesWithUnspent(acc models.Account) []models.AddressWithUnspentOutputs {
	byAddress := make(map[string][]models.OutputData)
	for _, output := range sortedOutputs(acc.UnspentOutputs) {
		byAddress[output.Address] = append(byAddress[output.Address], output)
	}
	out := make([]models.AddressWithUnspentOutputs, 0, len(byAddress))
	for _, chain := range [][]models.AccountAddress{acc.PublicAddresses, acc.InternalAddresses} {
		for _, address := range chain {
			outputs, ok := byAddress[address.Address]
			if !ok {
				continue
			}
			entry := models.AddressWithUnspentOutputs{
				Address:  address.Address,
				KeyIndex: address.KeyIndex,
				Internal: address.Internal,
			}
			sum := accountBalance(models.Account{UnspentOutputs: toOutputMap(outputs)})
			entry.Amount = sum.BaseCoin.Total
			for _, output := range outputs {
				entry.OutputIDs = append(entry.OutputIDs, output.OutputID)
			}
			out = append(out, entry)
		}
	}
	return out
}

func toOutputMap(outputs []models.OutputData) map[string]models.OutputData {
	out := make(map[string]models.OutputData, len(outputs))
	for _, output := range outputs {
		out[output.OutputID] = output
	}
	return out
}

func removeString(in []string, target string) []string {
	out := in[:0]
	for _, v := range in {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// startBackgroundSync replaces any running sync loop with one syncing every
// account each interval.
func (e *Engine) startBackgroundSync(opts *models.SyncOptions, interval time.Duration) error {
	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()
	if client == nil || len(client.Nodes()) == 0 {
		return ErrNoNodes
	}
	syncOpts := models.SyncOptions{}
	if opts != nil {
		syncOpts = *opts
	}
	// syncMu covers stop and install, so at most one loop is running.
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	if e.isClosed() {
		return engine.ErrHandleClosed
	}
	e.stopSyncLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.syncCancel = cancel
	e.syncDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			e.syncAll(ctx, syncOpts)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	e.logger.Info("background sync started", "interval_ms", interval.Milliseconds())
	return nil
}

func (e *Engine) stopBackgroundSync() {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	e.stopSyncLocked()
}

// stopSyncLocked cancels the running loop and waits for it. The loop never
// takes syncMu, so waiting here cannot deadlock.
func (e *Engine) stopSyncLocked() {
	cancel, done := e.syncCancel, e.syncDone
	e.syncCancel, e.syncDone = nil, nil
	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("background sync stopped")
}

func (e *Engine) syncAll(ctx context.Context, opts models.SyncOptions) {
	e.mu.RLock()
	indexes := make([]uint32, 0, len(e.accounts))
	for _, acc := range e.accounts {
		indexes = append(indexes, acc.Index)
	}
	e.mu.RUnlock()
	for _, index := range indexes {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.syncAccount(ctx, models.AccountIndex(index), opts); err != nil && ctx.Err() == nil {
			e.logger.Warn("background sync failed", "account_index", index, "error", err)
		}
	}
}
