package models

import "time"

type Account struct {
	Index                       uint32                      `json:"index"`
	CoinType                    uint32                      `json:"coinType"`
	Alias                       string                      `json:"alias"`
	PublicAddresses             []AccountAddress            `json:"publicAddresses"`
	InternalAddresses           []AccountAddress            `json:"internalAddresses"`
	AddressesWithUnspentOutputs []AddressWithUnspentOutputs `json:"addressesWithUnspentOutputs"`
	Outputs                     map[string]OutputData       `json:"outputs"`
	LockedOutputs               []string                    `json:"lockedOutputs"`
	UnspentOutputs              map[string]OutputData       `json:"unspentOutputs"`
	Transactions                map[string]Transaction      `json:"transactions"`
	PendingTransactions         []string                    `json:"pendingTransactions"`
}

type AccountAddress struct {
	Address  string `json:"address"`
	KeyIndex uint32 `json:"keyIndex"`
	Internal bool   `json:"internal"`
	Used     bool   `json:"used"`
}

type AddressWithUnspentOutputs struct {
	Address   string   `json:"address"`
	KeyIndex  uint32   `json:"keyIndex"`
	Internal  bool     `json:"internal"`
	Amount    string   `json:"amount"`
	OutputIDs []string `json:"outputIds"`
}

type OutputData struct {
	OutputID   string         `json:"outputId"`
	Metadata   OutputMetadata `json:"metadata"`
	Amount     string         `json:"amount"`
	IsSpent    bool           `json:"isSpent"`
	Address    string         `json:"address"`
	NetworkID  string         `json:"networkId"`
	Remainder  bool           `json:"remainder"`
	KeyIndex   uint32         `json:"keyIndex"`
	Internal   bool           `json:"internal"`
	OutputType int            `json:"outputType"`
}

type OutputMetadata struct {
	BlockID                  string `json:"blockId"`
	TransactionID            string `json:"transactionId"`
	OutputIndex              uint16 `json:"outputIndex"`
	IsSpent                  bool   `json:"isSpent"`
	MilestoneIndexBooked     uint32 `json:"milestoneIndexBooked"`
	MilestoneTimestampBooked uint32 `json:"milestoneTimestampBooked"`
	LedgerIndex              uint32 `json:"ledgerIndex"`
}

type Transaction struct {
	TransactionID  string    `json:"transactionId"`
	BlockID        string    `json:"blockId,omitempty"`
	InclusionState string    `json:"inclusionState"`
	Timestamp      time.Time `json:"timestamp"`
	Incoming       bool      `json:"incoming"`
	Note           string    `json:"note,omitempty"`
}

type Balance struct {
	BaseCoin                 BaseCoinBalance `json:"baseCoin"`
	RequiredStorageDeposit   string          `json:"requiredStorageDeposit"`
	PotentiallyLockedOutputs map[string]bool `json:"potentiallyLockedOutputs"`
}

type BaseCoinBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

type NodeInfo struct {
	Node string       `json:"node"`
	Info NodeInfoBody `json:"nodeInfo"`
}

type NodeInfoBody struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Status    NodeStatus    `json:"status"`
	Protocol  NodeProtocol  `json:"protocol"`
	BaseToken NodeBaseToken `json:"baseToken"`
	Features  []string      `json:"features"`
}

type NodeStatus struct {
	IsHealthy bool `json:"isHealthy"`
}

type NodeProtocol struct {
	Version     uint8  `json:"version"`
	NetworkName string `json:"networkName"`
	Bech32Hrp   string `json:"bech32Hrp"`
	MinPowScore uint32 `json:"minPowScore"`
}

type NodeBaseToken struct {
	Name         string `json:"name"`
	TickerSymbol string `json:"tickerSymbol"`
	Unit         string `json:"unit"`
	Decimals     uint32 `json:"decimals"`
}
