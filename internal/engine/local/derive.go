package local

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const (
	addressTypeEd25519 = byte(0)
	hkdfInfoPrefix     = "wallet/ed25519/v1"
)

// addressPath is the position of an address in the account tree.
type addressPath struct {
	CoinType uint32
	Account  uint32
	Internal bool
	KeyIndex uint32
}

func (p addressPath) info() string {
	change := 0
	if p.Internal {
		change = 1
	}
	return fmt.Sprintf("%s/%d/%d/%d/%d", hkdfInfoPrefix, p.CoinType, p.Account, change, p.KeyIndex)
}

// deriveSigningKey expands seed into the ed25519 key of path.
func deriveSigningKey(seed []byte, path addressPath) (ed25519.PrivateKey, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(path.info()))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, keySeed); err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(keySeed), nil
}

// deriveAddress returns the encoded address of path: hrp, "1", then base58 of
// the address type byte followed by blake2b-256 of the public key.
func deriveAddress(seed []byte, hrp string, path addressPath) (string, error) {
	priv, err := deriveSigningKey(seed, path)
	if err != nil {
		return "", err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return encodeEd25519Address(hrp, pub)
}

func encodeEd25519Address(hrp string, pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key size: %d", len(pub))
	}
	h := blake2b.Sum256(pub)
	raw := make([]byte, 0, 1+len(h))
	raw = append(raw, addressTypeEd25519)
	raw = append(raw, h[:]...)
	return hrp + "1" + base58.Encode(raw), nil
}
