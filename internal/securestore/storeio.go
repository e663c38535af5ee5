package securestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// ReadFile reads path and opens it with password. Unsealed content is returned
// as is when password is empty.
func ReadFile(path, password string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if password == "" {
		if IsSealed(raw) {
			return nil, ErrEmptyPassword
		}
		return raw, nil
	}
	return Open(password, raw)
}

// ReadJSON reads path with ReadFile and decodes it into v.
func ReadJSON(path, password string, v any) error {
	data, err := ReadFile(path, password)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// WriteJSON encodes v, seals it when password is set and replaces path.
func WriteJSON(path, password string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFile(path, password, payload)
}

// WriteFile writes through a temp file in the same directory so readers never
// see a partially written snapshot.
func WriteFile(path, password string, payload []byte) error {
	data := payload
	if password != "" {
		sealed, err := Seal(password, payload)
		if err != nil {
			return err
		}
		data = sealed
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// RemoveFile deletes path; a missing file is not an error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
