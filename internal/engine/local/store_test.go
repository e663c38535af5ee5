package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/securestore"
	"wallet-bridge/go-backend/internal/testutil/fsperm"
	"wallet-bridge/go-backend/pkg/models"
)

func TestOpenStoreSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		path string
		want string
	}{
		{"", storeKindMemory},
		{dir, storeKindFile},
		{filepath.Join(dir, "wallet.sqlite"), storeKindSQLite},
	}
	for _, tc := range cases {
		store, err := openStore(tc.path)
		if err != nil {
			t.Fatalf("openStore(%q) failed: %v", tc.path, err)
		}
		if store.Kind() != tc.want {
			t.Fatalf("openStore(%q) kind = %s, want %s", tc.path, store.Kind(), tc.want)
		}
		_ = store.Close()
	}
}

func TestStoresRoundTripState(t *testing.T) {
	dir := t.TempDir()
	sqlite, err := newSQLiteStore(filepath.Join(dir, "db", "wallet.sqlite"), "")
	if err != nil {
		t.Fatalf("newSQLiteStore failed: %v", err)
	}
	sealedSQLite, err := newSQLiteStore(filepath.Join(dir, "sealed-db", "wallet.sqlite"), "storage-secret")
	if err != nil {
		t.Fatalf("newSQLiteStore failed: %v", err)
	}
	stores := []walletStore{
		&memoryStore{},
		newFileStore(filepath.Join(dir, "plain", snapshotFileName), ""),
		newFileStore(filepath.Join(dir, "sealed", snapshotFileName), "storage-secret"),
		sqlite,
		sealedSQLite,
	}
	state := walletState{
		CoinType:          models.DefaultCoinType,
		ClientOptions:     &models.ClientOptions{Nodes: []string{"https://node.example"}},
		SecretManagerKind: secretKindMnemonic,
		Accounts: []models.Account{
			{Index: 0, Alias: "a", CoinType: models.DefaultCoinType, PublicAddresses: []models.AccountAddress{{Address: "atoi1x"}}},
			{Index: 1, Alias: "b", CoinType: models.DefaultCoinType},
		},
	}
	for _, store := range stores {
		loaded, err := store.Load()
		if err != nil || loaded != nil {
			t.Fatalf("%s: expected empty store, got %+v (%v)", store.Kind(), loaded, err)
		}
		if err := store.Save(state); err != nil {
			t.Fatalf("%s: Save failed: %v", store.Kind(), err)
		}
		loaded, err = store.Load()
		if err != nil {
			t.Fatalf("%s: Load failed: %v", store.Kind(), err)
		}
		if loaded == nil || len(loaded.Accounts) != 2 || loaded.Accounts[1].Alias != "b" {
			t.Fatalf("%s: unexpected state %+v", store.Kind(), loaded)
		}
		if loaded.ClientOptions == nil || loaded.ClientOptions.Nodes[0] != "https://node.example" {
			t.Fatalf("%s: client options not restored", store.Kind())
		}
		if loaded.CoinType != models.DefaultCoinType || loaded.SecretManagerKind != secretKindMnemonic {
			t.Fatalf("%s: meta not restored: %+v", store.Kind(), loaded)
		}
		if err := store.Delete(); err != nil {
			t.Fatalf("%s: Delete failed: %v", store.Kind(), err)
		}
		if loaded, err := store.Load(); err != nil || loaded != nil {
			t.Fatalf("%s: expected empty store after Delete, got %+v (%v)", store.Kind(), loaded, err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("%s: Close failed: %v", store.Kind(), err)
		}
	}
}

func TestFileStoreSealsWithSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), snapshotFileName)
	store := newFileStore(path, "storage-secret")
	if err := store.Save(walletState{CoinType: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot failed: %v", err)
	}
	if !securestore.IsSealed(raw) {
		t.Fatal("snapshot must be sealed when a secret is set")
	}
	if _, err := newFileStore(path, "other").Load(); err == nil {
		t.Fatal("expected error with the wrong secret")
	}
}

func TestSQLiteStoreSealsWithSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.sqlite")
	store, err := newSQLiteStore(path, "storage-secret")
	if err != nil {
		t.Fatalf("newSQLiteStore failed: %v", err)
	}
	state := walletState{
		CoinType:      models.DefaultCoinType,
		ClientOptions: &models.ClientOptions{Nodes: []string{"https://node.example"}},
		Accounts:      []models.Account{{Index: 0, Alias: "a", PublicAddresses: []models.AccountAddress{{Address: "atoi1x"}}}},
	}
	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	var data, clientOptions string
	if err := store.db.QueryRow(`SELECT data FROM accounts`).Scan(&data); err != nil {
		t.Fatalf("query account row failed: %v", err)
	}
	if err := store.db.QueryRow(`SELECT value FROM wallet_meta WHERE key = ?`, metaClientOptions).Scan(&clientOptions); err != nil {
		t.Fatalf("query client options failed: %v", err)
	}
	if !securestore.IsSealedRecord(data) || !securestore.IsSealedRecord(clientOptions) {
		t.Fatalf("rows must be sealed when a secret is set: %q %q", data, clientOptions)
	}
	// A second save reuses the stored key.
	if err := store.Save(state); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, secret := range []string{"", "other"} {
		reopened, err := newSQLiteStore(path, secret)
		if err != nil {
			t.Fatalf("newSQLiteStore failed: %v", err)
		}
		if _, err := reopened.Load(); err == nil {
			t.Fatalf("Load with secret %q must fail", secret)
		}
		_ = reopened.Close()
	}

	reopened, err := newSQLiteStore(path, "storage-secret")
	if err != nil {
		t.Fatalf("newSQLiteStore failed: %v", err)
	}
	defer reopened.Close()
	loaded, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || len(loaded.Accounts) != 1 || loaded.Accounts[0].PublicAddresses[0].Address != "atoi1x" {
		t.Fatalf("unexpected state %+v", loaded)
	}
	if loaded.ClientOptions == nil || loaded.ClientOptions.Nodes[0] != "https://node.example" {
		t.Fatal("client options not restored")
	}
}

func TestEngineReloadsPersistedAccounts(t *testing.T) {
	for _, storagePath := range []string{t.TempDir(), filepath.Join(t.TempDir(), "wallet.sqlite")} {
		opts := engine.Options{StoragePath: storagePath, SecretManager: mnemonicSecretJSON(t)}
		first, err := New(context.Background(), opts)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		created := createAccount(t, first, "persisted")
		if err := first.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		second := newTestEngine(t, opts)
		resp := send(t, second, models.CmdGetAccount, models.AccountAlias("persisted"))
		mustType(t, resp, models.RespAccount)
		var acc models.Account
		if err := resp.Decode(&acc); err != nil {
			t.Fatalf("decode account failed: %v", err)
		}
		if acc.PublicAddresses[0].Address != created.PublicAddresses[0].Address {
			t.Fatalf("%s: reloaded account differs", storagePath)
		}
	}
}

func TestSQLiteStoreIsPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "wallet.sqlite")
	store, err := newSQLiteStore(path, "")
	if err != nil {
		t.Fatalf("newSQLiteStore failed: %v", err)
	}
	defer store.Close()
	if err := store.Save(walletState{CoinType: models.DefaultCoinType}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	fsperm.AssertPrivateDirPerm(t, filepath.Dir(path))
	fsperm.AssertPrivateFilePerm(t, path)
}
