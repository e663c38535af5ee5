package local

import (
	"errors"

	"wallet-bridge/go-backend/internal/nodeclient"
)

var (
	ErrInvalidMnemonic        = errors.New("invalid mnemonic")
	ErrInvalidPassword        = errors.New("invalid stronghold password")
	ErrPasswordRequired       = errors.New("stronghold password is required")
	ErrPasswordLocked         = errors.New("password attempts are temporarily locked")
	ErrMnemonicRequired       = errors.New("mnemonic is required")
	ErrMnemonicNotStored      = errors.New("no mnemonic stored in the secret manager")
	ErrMnemonicAlreadyStored  = errors.New("a mnemonic is already stored in the secret manager")
	ErrStrongholdOnly         = errors.New("operation is only supported by the Stronghold secret manager")
	ErrSecretManagerMissing   = errors.New("secret manager is not configured")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAliasTaken             = errors.New("account alias already exists")
	ErrCoinTypeMismatch       = errors.New("coin type does not match existing accounts")
	ErrUnknownCommand         = errors.New("unknown command")
	ErrUnknownAccountMethod   = errors.New("unknown account method")
	ErrInvalidPayload         = errors.New("invalid payload")
	ErrUnknownEventType       = errors.New("unknown event type")
	ErrUnsupported            = errors.New("not supported by the local engine")
	ErrBackupPasswordRequired = errors.New("backup password is required")
	ErrNoNodes                = errors.New("no nodes configured")
	ErrAddressAmountTooLarge  = errors.New("too many addresses requested")
)

// errorKind maps an engine error to the type tag carried by Error responses.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMnemonic), errors.Is(err, ErrMnemonicRequired):
		return "invalidMnemonic"
	case errors.Is(err, ErrInvalidPassword):
		return "strongholdInvalidPassword"
	case errors.Is(err, ErrPasswordRequired):
		return "strongholdPasswordMissing"
	case errors.Is(err, ErrPasswordLocked):
		return "strongholdPasswordLocked"
	case errors.Is(err, ErrMnemonicNotStored), errors.Is(err, ErrMnemonicAlreadyStored):
		return "strongholdMnemonic"
	case errors.Is(err, ErrStrongholdOnly), errors.Is(err, ErrSecretManagerMissing):
		return "secretManager"
	case errors.Is(err, ErrAccountNotFound):
		return "accountNotFound"
	case errors.Is(err, ErrAliasTaken):
		return "accountAliasAlreadyExists"
	case errors.Is(err, ErrCoinTypeMismatch):
		return "invalidCoinType"
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrUnknownAccountMethod), errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrUnknownEventType), errors.Is(err, ErrAddressAmountTooLarge):
		return "invalidMessage"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrBackupPasswordRequired):
		return "backup"
	case errors.Is(err, ErrNoNodes), errors.Is(err, nodeclient.ErrNodeUnavailable), errors.Is(err, nodeclient.ErrInvalidNode):
		return "client"
	default:
		return "wallet"
	}
}
