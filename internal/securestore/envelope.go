// Package securestore seals wallet secrets and snapshots with a password
// derived key (argon2id) and XChaCha20-Poly1305.
package securestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	kdfName         = "argon2id"
	filePrefix      = "WLTENC1\n"
)

var (
	ErrAuthFailed    = errors.New("securestore authentication failed")
	ErrInvalid       = errors.New("securestore envelope is invalid")
	ErrNotSealed     = errors.New("securestore data is not sealed")
	ErrEmptyPassword = errors.New("securestore password is empty")
)

// KDFParams are the argon2id cost parameters recorded in every envelope.
type KDFParams struct {
	Time     uint32 `json:"kdf_time"`
	MemoryKB uint32 `json:"kdf_memory_kb"`
	Threads  uint8  `json:"kdf_threads"`
}

var DefaultKDFParams = KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}

type Envelope struct {
	Version    uint32    `json:"version"`
	KDF        string    `json:"kdf"`
	Params     KDFParams `json:"params"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

// Seal encrypts plaintext and returns the prefixed, JSON encoded envelope.
func Seal(password string, plaintext []byte) ([]byte, error) {
	env, err := SealEnvelope(password, plaintext, DefaultKDFParams)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func SealEnvelope(password string, plaintext []byte, params KDFParams) (*Envelope, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(password, salt, params)
	defer Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &Envelope{
		Version:    envelopeVersion,
		KDF:        kdfName,
		Params:     params,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// IsSealed reports whether data carries the envelope prefix.
func IsSealed(data []byte) bool {
	return strings.HasPrefix(string(data), filePrefix)
}

func Open(password string, data []byte) ([]byte, error) {
	if !IsSealed(data) {
		return nil, ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	return OpenEnvelope(password, &env)
}

func OpenEnvelope(password string, env *Envelope) ([]byte, error) {
	if env == nil || env.Version != envelopeVersion || env.KDF != kdfName {
		return nil, ErrInvalid
	}
	if env.Params.Time == 0 || env.Params.MemoryKB == 0 || env.Params.Threads == 0 {
		return nil, ErrInvalid
	}
	key := deriveKey(password, env.Salt, env.Params)
	defer Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrInvalid
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func deriveKey(password string, salt []byte, params KDFParams) []byte {
	return argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKB, params.Threads, chacha20poly1305.KeySize)
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
