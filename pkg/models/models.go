package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Message is the command envelope sent to a message handler.
type Message struct {
	Cmd     string `json:"cmd"`
	Payload any    `json:"payload,omitempty"`
}

const (
	CmdCreateAccount                      = "CreateAccount"
	CmdGetAccount                         = "GetAccount"
	CmdGetAccounts                        = "GetAccounts"
	CmdCallAccountMethod                  = "CallAccountMethod"
	CmdBackup                             = "Backup"
	CmdChangeStrongholdPassword           = "ChangeStrongholdPassword"
	CmdClearStrongholdPassword            = "ClearStrongholdPassword"
	CmdIsStrongholdPasswordAvailable      = "IsStrongholdPasswordAvailable"
	CmdRestoreBackup                      = "RestoreBackup"
	CmdGenerateMnemonic                   = "GenerateMnemonic"
	CmdVerifyMnemonic                     = "VerifyMnemonic"
	CmdSetClientOptions                   = "SetClientOptions"
	CmdGetNodeInfo                        = "GetNodeInfo"
	CmdSetStrongholdPassword              = "SetStrongholdPassword"
	CmdSetStrongholdPasswordClearInterval = "SetStrongholdPasswordClearInterval"
	CmdStoreMnemonic                      = "StoreMnemonic"
	CmdStartBackgroundSync                = "StartBackgroundSync"
	CmdStopBackgroundSync                 = "StopBackgroundSync"
	CmdEmitTestEvent                      = "EmitTestEvent"
	CmdDeleteStorage                      = "DeleteStorage"
)

// AccountID identifies an account either by alias or by index.
type AccountID struct {
	Alias string
	Index *uint32
}

func AccountAlias(alias string) AccountID {
	return AccountID{Alias: alias}
}

func AccountIndex(index uint32) AccountID {
	return AccountID{Index: &index}
}

func (id AccountID) IsIndex() bool {
	return id.Index != nil
}

func (id AccountID) String() string {
	if id.Index != nil {
		return strconv.FormatUint(uint64(*id.Index), 10)
	}
	return id.Alias
}

func (id AccountID) MarshalJSON() ([]byte, error) {
	if id.Index != nil {
		return json.Marshal(*id.Index)
	}
	return json.Marshal(id.Alias)
}

var ErrAccountIDNull = errors.New("account id must not be null")

func (id *AccountID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return ErrAccountIDNull
	}
	if strings.HasPrefix(trimmed, "\"") {
		var alias string
		if err := json.Unmarshal(data, &alias); err != nil {
			return err
		}
		*id = AccountID{Alias: alias}
		return nil
	}
	var index uint32
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("account id must be an alias string or an index: %w", err)
	}
	*id = AccountID{Index: &index}
	return nil
}

// AccountMethod is the method descriptor carried by CallAccountMethod.
type AccountMethod struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

type CallAccountMethodPayload struct {
	AccountID AccountID     `json:"accountId"`
	Method    AccountMethod `json:"method"`
}

const (
	MethodGenerateAddresses               = "GenerateAddresses"
	MethodListAddresses                   = "ListAddresses"
	MethodListAddressesWithUnspentOutputs = "ListAddressesWithUnspentOutputs"
	MethodGetBalance                      = "GetBalance"
	MethodSyncAccount                     = "SyncAccount"
	MethodListOutputs                     = "ListOutputs"
	MethodListUnspentOutputs              = "ListUnspentOutputs"
	MethodGetOutput                       = "GetOutput"
	MethodListTransactions                = "ListTransactions"
	MethodListPendingTransactions         = "ListPendingTransactions"
	MethodSendAmount                      = "SendAmount"
	MethodSendNativeTokens                = "SendNativeTokens"
	MethodSendNft                         = "SendNft"
	MethodMintNfts                        = "MintNfts"
	MethodMintNativeToken                 = "MintNativeToken"
	MethodCollectOutputs                  = "CollectOutputs"
)

type CreateAccountPayload struct {
	Alias string `json:"alias,omitempty"`
}

type BackupPayload struct {
	Destination string `json:"destination"`
	Password    string `json:"password"`
}

type RestoreBackupPayload struct {
	Source   string `json:"source"`
	Password string `json:"password"`
}

type ChangeStrongholdPasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type GetNodeInfoPayload struct {
	URL  string    `json:"url,omitempty"`
	Auth *NodeAuth `json:"auth,omitempty"`
}

type NodeAuth struct {
	JWT      string `json:"jwt,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type StartBackgroundSyncPayload struct {
	Options                *SyncOptions `json:"options,omitempty"`
	IntervalInMilliseconds *uint64      `json:"intervalInMilliseconds,omitempty"`
}

type GenerateAddressesPayload struct {
	Amount  uint32                  `json:"amount"`
	Options *GenerateAddressOptions `json:"options,omitempty"`
}

type GenerateAddressOptions struct {
	Internal bool `json:"internal"`
}

type SyncOptions struct {
	ForceSyncing      bool `json:"forceSyncing,omitempty"`
	SyncOnlyMostBasic bool `json:"syncOnlyMostBasicOutputs,omitempty"`
}

type GetOutputPayload struct {
	OutputID string `json:"outputId"`
}
