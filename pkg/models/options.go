package models

import (
	"encoding/json"
	"errors"
)

const (
	DefaultCoinType  = uint32(4218)
	DefaultBech32Hrp = "atoi"
)

type ClientOptions struct {
	Nodes        []string `json:"nodes,omitempty"`
	PrimaryNode  string   `json:"primaryNode,omitempty"`
	LocalPow     bool     `json:"localPow"`
	APITimeoutMs uint64   `json:"apiTimeoutMs,omitempty"`
	Bech32Hrp    string   `json:"bech32Hrp,omitempty"`
	CoinType     uint32   `json:"coinType,omitempty"`
}

// SecretManager selects and configures the secret manager of a wallet.
// Exactly one of Stronghold and Mnemonic is set.
type SecretManager struct {
	Stronghold *StrongholdOptions
	Mnemonic   string
}

type StrongholdOptions struct {
	SnapshotPath string `json:"snapshotPath"`
	Password     string `json:"password,omitempty"`
}

var ErrSecretManagerKind = errors.New("secret manager must be Stronghold or Mnemonic")

func (s SecretManager) MarshalJSON() ([]byte, error) {
	switch {
	case s.Stronghold != nil && s.Mnemonic == "":
		return json.Marshal(map[string]*StrongholdOptions{"Stronghold": s.Stronghold})
	case s.Stronghold == nil && s.Mnemonic != "":
		return json.Marshal(map[string]string{"Mnemonic": s.Mnemonic})
	default:
		return nil, ErrSecretManagerKind
	}
}

func (s *SecretManager) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return ErrSecretManagerKind
	}
	if v, ok := raw["Stronghold"]; ok {
		var opts StrongholdOptions
		if err := json.Unmarshal(v, &opts); err != nil {
			return err
		}
		*s = SecretManager{Stronghold: &opts}
		return nil
	}
	if v, ok := raw["Mnemonic"]; ok {
		var mnemonic string
		if err := json.Unmarshal(v, &mnemonic); err != nil {
			return err
		}
		*s = SecretManager{Mnemonic: mnemonic}
		return nil
	}
	return ErrSecretManagerKind
}
