package securestore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const recordPrefix = "WLTREC1:"

// RecordKey describes how a RecordSealer key is derived. It is stored next to
// the records it protects and holds no secret.
type RecordKey struct {
	Params KDFParams `json:"params"`
	Salt   []byte    `json:"salt"`
	Check  string    `json:"check"`
}

const recordCheck = "wallet-record-key"

// RecordSealer seals many small records under one derived key, so the KDF
// runs once per store instead of once per record.
type RecordSealer struct {
	aead cipher.AEAD
}

// NewRecordKey derives a fresh key for password and returns its description
// together with the sealer.
func NewRecordKey(password string, params KDFParams) (*RecordSealer, RecordKey, error) {
	if password == "" {
		return nil, RecordKey{}, ErrEmptyPassword
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, RecordKey{}, err
	}
	sealer, err := newRecordSealer(password, salt, params)
	if err != nil {
		return nil, RecordKey{}, err
	}
	check, err := sealer.Seal([]byte(recordCheck))
	if err != nil {
		return nil, RecordKey{}, err
	}
	return sealer, RecordKey{Params: params, Salt: salt, Check: check}, nil
}

// OpenRecordKey rebuilds the sealer described by key. A wrong password fails
// with ErrAuthFailed.
func OpenRecordKey(password string, key RecordKey) (*RecordSealer, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(key.Salt) != saltSize || key.Params.Time == 0 || key.Params.MemoryKB == 0 || key.Params.Threads == 0 {
		return nil, ErrInvalid
	}
	sealer, err := newRecordSealer(password, key.Salt, key.Params)
	if err != nil {
		return nil, err
	}
	check, err := sealer.Open(key.Check)
	if err != nil {
		return nil, err
	}
	if string(check) != recordCheck {
		return nil, ErrAuthFailed
	}
	return sealer, nil
}

func newRecordSealer(password string, salt []byte, params KDFParams) (*RecordSealer, error) {
	key := deriveKey(password, salt, params)
	defer Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &RecordSealer{aead: aead}, nil
}

func (s *RecordSealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return recordPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *RecordSealer) Open(record string) ([]byte, error) {
	if !IsSealedRecord(record) {
		return nil, ErrNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(record[len(recordPrefix):])
	if err != nil || len(raw) < s.aead.NonceSize() {
		return nil, ErrInvalid
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// SealJSON encodes v and seals it.
func (s *RecordSealer) SealJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	defer Zero(raw)
	return s.Seal(raw)
}

func IsSealedRecord(record string) bool {
	return strings.HasPrefix(record, recordPrefix)
}
