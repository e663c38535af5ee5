package local

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"wallet-bridge/go-backend/internal/securestore"
	"wallet-bridge/go-backend/pkg/models"

	"github.com/tyler-smith/go-bip39"
)

const (
	secretKindStronghold = "Stronghold"
	secretKindMnemonic   = "Mnemonic"
)

// secretManager provides the seed addresses are derived from.
type secretManager interface {
	Kind() string
	Seed() ([]byte, error)
	StoreMnemonic(mnemonic string) error
	SetPassword(password string) error
	ChangePassword(current, next string) error
	ClearPassword() error
	PasswordAvailable() (bool, error)
	SetClearInterval(interval time.Duration) error
	// exportMnemonic and importMnemonic move the mnemonic through backups.
	exportMnemonic() (string, error)
	importMnemonic(mnemonic string) error
	Close()
}

func newSecretManager(opts *models.SecretManager, now func() time.Time) (secretManager, error) {
	if opts == nil {
		return nil, nil
	}
	switch {
	case opts.Stronghold != nil:
		s, err := newStronghold(*opts.Stronghold, now)
		if err != nil {
			return nil, err
		}
		return s, nil
	case opts.Mnemonic != "":
		mnemonic := normalizeMnemonic(opts.Mnemonic)
		if !bip39.IsMnemonicValid(mnemonic) {
			return nil, ErrInvalidMnemonic
		}
		return &mnemonicSecretManager{mnemonic: mnemonic}, nil
	default:
		return nil, models.ErrSecretManagerKind
	}
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}

// stronghold keeps the mnemonic sealed in a snapshot file. The password lives
// in memory until cleared, either explicitly or by the clear interval.
type stronghold struct {
	mu             sync.Mutex
	snapshotPath   string
	sealed         []byte
	password       string
	clearInterval  time.Duration
	clearTimer     *time.Timer
	clearGen       uint64
	failedAttempts int
	lockedUntil    time.Time
	now            func() time.Time
}

func newStronghold(opts models.StrongholdOptions, now func() time.Time) (*stronghold, error) {
	path := strings.TrimSpace(opts.SnapshotPath)
	if path == "" {
		return nil, fmt.Errorf("%w: stronghold snapshot path is empty", ErrInvalidPayload)
	}
	if now == nil {
		now = time.Now
	}
	s := &stronghold{snapshotPath: path, now: now}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if !securestore.IsSealed(raw) {
			return nil, fmt.Errorf("stronghold snapshot %s: %w", path, securestore.ErrNotSealed)
		}
		s.sealed = raw
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if opts.Password != "" {
		if err := s.SetPassword(opts.Password); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *stronghold) Kind() string { return secretKindStronghold }

func (s *stronghold) SetPassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureUnlocked(); err != nil {
		return err
	}
	if s.sealed != nil {
		plaintext, err := securestore.Open(password, s.sealed)
		if err != nil {
			s.onFailedPasswordAttempt()
			return ErrInvalidPassword
		}
		securestore.Zero(plaintext)
	}
	s.resetPasswordAttemptState()
	s.password = password
	s.armClearTimerLocked()
	return nil
}

func (s *stronghold) ChangePassword(current, next string) error {
	if strings.TrimSpace(current) == "" || strings.TrimSpace(next) == "" {
		return ErrPasswordRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureUnlocked(); err != nil {
		return err
	}
	if s.sealed == nil {
		return ErrMnemonicNotStored
	}
	plaintext, err := securestore.Open(current, s.sealed)
	if err != nil {
		s.onFailedPasswordAttempt()
		return ErrInvalidPassword
	}
	defer securestore.Zero(plaintext)
	if err := s.writeSnapshotLocked(next, plaintext); err != nil {
		return err
	}
	s.resetPasswordAttemptState()
	s.password = next
	s.armClearTimerLocked()
	return nil
}

func (s *stronghold) ClearPassword() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearPasswordLocked()
	return nil
}

func (s *stronghold) PasswordAvailable() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.password != "", nil
}

// SetClearInterval schedules the password to be dropped interval after it was
// last set. Zero keeps the password until ClearPassword.
func (s *stronghold) SetClearInterval(interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("%w: negative clear interval", ErrInvalidPayload)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearInterval = interval
	s.armClearTimerLocked()
	return nil
}

func (s *stronghold) StoreMnemonic(mnemonic string) error {
	mnemonic = normalizeMnemonic(mnemonic)
	if mnemonic == "" {
		return ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password == "" {
		return ErrPasswordRequired
	}
	if s.sealed != nil {
		return ErrMnemonicAlreadyStored
	}
	return s.writeSnapshotLocked(s.password, []byte(mnemonic))
}

func (s *stronghold) Seed() ([]byte, error) {
	mnemonic, err := s.exportMnemonic()
	if err != nil {
		return nil, err
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

func (s *stronghold) exportMnemonic() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password == "" {
		return "", ErrPasswordRequired
	}
	if s.sealed == nil {
		return "", ErrMnemonicNotStored
	}
	plaintext, err := securestore.Open(s.password, s.sealed)
	if err != nil {
		return "", ErrInvalidPassword
	}
	defer securestore.Zero(plaintext)
	mnemonic := strings.TrimSpace(string(plaintext))
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", fmt.Errorf("%w: corrupted snapshot", ErrInvalidMnemonic)
	}
	return mnemonic, nil
}

// importMnemonic replaces the stored mnemonic; used when restoring a backup.
func (s *stronghold) importMnemonic(mnemonic string) error {
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password == "" {
		return ErrPasswordRequired
	}
	return s.writeSnapshotLocked(s.password, []byte(mnemonic))
}

func (s *stronghold) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearPasswordLocked()
}

func (s *stronghold) writeSnapshotLocked(password string, plaintext []byte) error {
	sealed, err := securestore.Seal(password, plaintext)
	if err != nil {
		return err
	}
	if err := securestore.WriteFile(s.snapshotPath, "", sealed); err != nil {
		return err
	}
	s.sealed = sealed
	return nil
}

// armClearTimerLocked restarts the clear timer. A callback that fired before
// the timer was re-armed sees a newer clearGen and leaves the password alone.
func (s *stronghold) armClearTimerLocked() {
	s.stopClearTimerLocked()
	if s.clearInterval <= 0 || s.password == "" {
		return
	}
	gen := s.clearGen
	s.clearTimer = time.AfterFunc(s.clearInterval, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.clearGen != gen {
			return
		}
		s.clearPasswordLocked()
	})
}

func (s *stronghold) stopClearTimerLocked() {
	s.clearGen++
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

func (s *stronghold) clearPasswordLocked() {
	s.password = ""
	s.stopClearTimerLocked()
}

func (s *stronghold) ensureUnlocked() error {
	if s.lockedUntil.IsZero() {
		return nil
	}
	if s.now().Before(s.lockedUntil) {
		return ErrPasswordLocked
	}
	return nil
}

func (s *stronghold) onFailedPasswordAttempt() {
	s.failedAttempts++
	s.lockedUntil = s.now().Add(failedAttemptBackoff(s.failedAttempts))
}

func (s *stronghold) resetPasswordAttemptState() {
	s.failedAttempts = 0
	s.lockedUntil = time.Time{}
}

func failedAttemptBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// 1s, 2s, 4s... up to 32s max.
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	return time.Second * time.Duration(1<<shift)
}

// mnemonicSecretManager holds a plaintext mnemonic in memory.
type mnemonicSecretManager struct {
	mu       sync.RWMutex
	mnemonic string
}

func (m *mnemonicSecretManager) Kind() string { return secretKindMnemonic }

func (m *mnemonicSecretManager) Seed() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bip39.NewSeed(m.mnemonic, ""), nil
}

func (m *mnemonicSecretManager) StoreMnemonic(string) error { return ErrStrongholdOnly }
func (m *mnemonicSecretManager) SetPassword(string) error { return ErrStrongholdOnly }
func (m *mnemonicSecretManager) ChangePassword(string, string) error { return ErrStrongholdOnly }
func (m *mnemonicSecretManager) ClearPassword() error { return ErrStrongholdOnly }
func (m *mnemonicSecretManager) PasswordAvailable() (bool, error) { return false, ErrStrongholdOnly }
func (m *mnemonicSecretManager) SetClearInterval(time.Duration) error { return ErrStrongholdOnly }

func (m *mnemonicSecretManager) exportMnemonic() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mnemonic, nil
}

func (m *mnemonicSecretManager) importMnemonic(mnemonic string) error {
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mnemonic = mnemonic
	return nil
}

func (m *mnemonicSecretManager) Close() {}
