package local

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/securestore"
	"wallet-bridge/go-backend/pkg/models"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func mnemonicSecretJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(models.SecretManager{Mnemonic: testMnemonic})
	if err != nil {
		t.Fatalf("marshal secret manager failed: %v", err)
	}
	return string(raw)
}

func newTestEngine(t *testing.T, opts engine.Options) *Engine {
	t.Helper()
	e, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func send(t *testing.T, e *Engine, cmd string, payload any) models.Response {
	t.Helper()
	raw, err := json.Marshal(models.Message{Cmd: cmd, Payload: payload})
	if err != nil {
		t.Fatalf("marshal message failed: %v", err)
	}
	text, err := e.SendMessage(context.Background(), string(raw))
	if err != nil {
		t.Fatalf("SendMessage(%s) failed: %v", cmd, err)
	}
	resp, err := models.ParseResponse(text)
	if err != nil {
		t.Fatalf("parse response failed: %v", err)
	}
	return resp
}

func callMethod(t *testing.T, e *Engine, id models.AccountID, name string, data any) models.Response {
	t.Helper()
	return send(t, e, models.CmdCallAccountMethod, models.CallAccountMethodPayload{
		AccountID: id,
		Method:    models.AccountMethod{Name: name, Data: data},
	})
}

func mustType(t *testing.T, resp models.Response, want string) {
	t.Helper()
	if resp.Type != want {
		t.Fatalf("unexpected response %s, want %s", resp.String(), want)
	}
}

func errorKindOf(t *testing.T, resp models.Response) string {
	t.Helper()
	mustType(t, resp, models.RespError)
	var payload models.ErrorPayload
	if err := resp.Decode(&payload); err != nil {
		t.Fatalf("decode error payload failed: %v", err)
	}
	return payload.Type
}

func createAccount(t *testing.T, e *Engine, alias string) models.Account {
	t.Helper()
	resp := send(t, e, models.CmdCreateAccount, models.CreateAccountPayload{Alias: alias})
	mustType(t, resp, models.RespAccount)
	var acc models.Account
	if err := resp.Decode(&acc); err != nil {
		t.Fatalf("decode account failed: %v", err)
	}
	return acc
}

func TestCreateAccountAssignsIndexAndUniqueAlias(t *testing.T) {
	e := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})

	first := createAccount(t, e, "savings")
	if first.Index != 0 || first.Alias != "savings" || first.CoinType != models.DefaultCoinType {
		t.Fatalf("unexpected first account: %+v", first)
	}
	if len(first.PublicAddresses) != 1 {
		t.Fatalf("expected one public address, got %d", len(first.PublicAddresses))
	}
	second := createAccount(t, e, "")
	if second.Index != 1 || second.Alias != "1" {
		t.Fatalf("unexpected second account: %+v", second)
	}
	if kind := errorKindOf(t, send(t, e, models.CmdCreateAccount, models.CreateAccountPayload{Alias: "savings"})); kind != "accountAliasAlreadyExists" {
		t.Fatalf("unexpected error kind: %s", kind)
	}

	resp := send(t, e, models.CmdGetAccounts, nil)
	mustType(t, resp, models.RespAccounts)
	var accounts []models.Account
	if err := resp.Decode(&accounts); err != nil {
		t.Fatalf("decode accounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
}

func TestGetAccountByAliasAndIndex(t *testing.T) {
	e := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})
	created := createAccount(t, e, "main")

	for _, id := range []models.AccountID{models.AccountAlias("main"), models.AccountIndex(0)} {
		resp := send(t, e, models.CmdGetAccount, id)
		mustType(t, resp, models.RespAccount)
		var acc models.Account
		if err := resp.Decode(&acc); err != nil {
			t.Fatalf("decode account failed: %v", err)
		}
		if acc.PublicAddresses[0].Address != created.PublicAddresses[0].Address {
			t.Fatalf("account lookup by %s returned another account", id)
		}
	}
	if kind := errorKindOf(t, send(t, e, models.CmdGetAccount, models.AccountAlias("missing"))); kind != "accountNotFound" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
}

func TestAddressDerivationIsDeterministic(t *testing.T) {
	a := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})
	b := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})

	accA := createAccount(t, a, "x")
	accB := createAccount(t, b, "y")
	if accA.PublicAddresses[0].Address != accB.PublicAddresses[0].Address {
		t.Fatal("same mnemonic must derive the same first address")
	}

	resp := callMethod(t, a, models.AccountIndex(0), models.MethodGenerateAddresses, models.GenerateAddressesPayload{Amount: 2})
	mustType(t, resp, models.RespAddresses)
	var generated []models.AccountAddress
	if err := resp.Decode(&generated); err != nil {
		t.Fatalf("decode addresses failed: %v", err)
	}
	if len(generated) != 2 || generated[0].KeyIndex != 1 || generated[1].KeyIndex != 2 {
		t.Fatalf("unexpected generated addresses: %+v", generated)
	}

	resp = callMethod(t, a, models.AccountIndex(0), models.MethodListAddresses, nil)
	var listed []models.AccountAddress
	if err := resp.Decode(&listed); err != nil {
		t.Fatalf("decode addresses failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 addresses, got %d", len(listed))
	}
	seen := map[string]bool{}
	for _, addr := range listed {
		if seen[addr.Address] {
			t.Fatalf("duplicate address %s", addr.Address)
		}
		seen[addr.Address] = true
	}
}

func TestCreateAccountWithoutSecretManager(t *testing.T) {
	e := newTestEngine(t, engine.Options{})
	if kind := errorKindOf(t, send(t, e, models.CmdCreateAccount, nil)); kind != "secretManager" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
}

func TestUnknownCommandAndMethod(t *testing.T) {
	e := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})
	createAccount(t, e, "a")

	if kind := errorKindOf(t, send(t, e, "Teleport", nil)); kind != "invalidMessage" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	if kind := errorKindOf(t, callMethod(t, e, models.AccountIndex(0), "Teleport", nil)); kind != "invalidMessage" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	if kind := errorKindOf(t, callMethod(t, e, models.AccountIndex(0), models.MethodSendAmount, nil)); kind != "unsupported" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	text, err := e.SendMessage(context.Background(), "{not json")
	if err != nil {
		t.Fatalf("malformed envelope must be an Error response, got %v", err)
	}
	resp, err := models.ParseResponse(text)
	if err != nil {
		t.Fatalf("parse response failed: %v", err)
	}
	if kind := errorKindOf(t, resp); kind != "invalidMessage" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
}

func TestGetOutputUnknownReturnsNull(t *testing.T) {
	e := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})
	createAccount(t, e, "a")
	resp := callMethod(t, e, models.AccountIndex(0), models.MethodGetOutput, models.GetOutputPayload{OutputID: "0x01"})
	mustType(t, resp, models.RespOutput)
	var out *models.OutputData
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("decode output failed: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output, got %+v", out)
	}
}

func TestMnemonicCommands(t *testing.T) {
	e := newTestEngine(t, engine.Options{})
	resp := send(t, e, models.CmdGenerateMnemonic, nil)
	mustType(t, resp, models.RespGeneratedMnemonic)
	var mnemonic string
	if err := resp.Decode(&mnemonic); err != nil {
		t.Fatalf("decode mnemonic failed: %v", err)
	}
	mustType(t, send(t, e, models.CmdVerifyMnemonic, mnemonic), models.RespOk)
	if kind := errorKindOf(t, send(t, e, models.CmdVerifyMnemonic, "not a mnemonic")); kind != "invalidMnemonic" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	if resp.String() != "GeneratedMnemonic(<omitted>)" {
		t.Fatalf("mnemonic leaked into String(): %s", resp.String())
	}
}

func TestStrongholdPasswordLifecycle(t *testing.T) {
	dir := t.TempDir()
	secret, err := json.Marshal(models.SecretManager{Stronghold: &models.StrongholdOptions{
		SnapshotPath: filepath.Join(dir, "wallet.stronghold"),
	}})
	if err != nil {
		t.Fatalf("marshal secret manager failed: %v", err)
	}
	e := newTestEngine(t, engine.Options{SecretManager: string(secret)})

	var available bool
	resp := send(t, e, models.CmdIsStrongholdPasswordAvailable, nil)
	if err := resp.Decode(&available); err != nil || available {
		t.Fatalf("expected no password, got %v (%v)", available, err)
	}
	if kind := errorKindOf(t, send(t, e, models.CmdStoreMnemonic, testMnemonic)); kind != "strongholdPasswordMissing" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	mustType(t, send(t, e, models.CmdSetStrongholdPassword, "correct horse"), models.RespOk)
	mustType(t, send(t, e, models.CmdStoreMnemonic, testMnemonic), models.RespOk)
	if kind := errorKindOf(t, send(t, e, models.CmdStoreMnemonic, testMnemonic)); kind != "strongholdMnemonic" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	createAccount(t, e, "vault")

	mustType(t, send(t, e, models.CmdClearStrongholdPassword, nil), models.RespOk)
	if kind := errorKindOf(t, send(t, e, models.CmdCreateAccount, nil)); kind != "strongholdPasswordMissing" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	if kind := errorKindOf(t, send(t, e, models.CmdSetStrongholdPassword, "wrong")); kind != "strongholdInvalidPassword" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	if kind := errorKindOf(t, send(t, e, models.CmdSetStrongholdPassword, "correct horse")); kind != "strongholdPasswordLocked" {
		t.Fatalf("expected lockout after a wrong password, got %s", kind)
	}
}

func TestMnemonicSecretManagerRejectsStrongholdCommands(t *testing.T) {
	e := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})
	if kind := errorKindOf(t, send(t, e, models.CmdSetStrongholdPassword, "pw")); kind != "secretManager" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
}

func TestListenFiltersEventTypes(t *testing.T) {
	e := newTestEngine(t, engine.Options{})
	got := make(chan string, 4)
	err := e.Listen(context.Background(), []string{models.EventNewOutput, models.EventSpentOutput}, func(err error, result string) {
		if err != nil {
			t.Errorf("unexpected callback error: %v", err)
			return
		}
		got <- result
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	mustType(t, send(t, e, models.CmdEmitTestEvent, models.WalletEvent{Type: models.EventTransactionProgress, Progress: "SigningTransaction"}), models.RespOk)
	mustType(t, send(t, e, models.CmdEmitTestEvent, models.WalletEvent{Type: models.EventNewOutput}), models.RespOk)

	select {
	case text := <-got:
		evt, err := models.ParseEvent(text)
		if err != nil {
			t.Fatalf("ParseEvent failed: %v", err)
		}
		if evt.Event.Type != models.EventNewOutput {
			t.Fatalf("unexpected event: %s", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
	select {
	case text := <-got:
		t.Fatalf("unexpected second delivery: %s", text)
	case <-time.After(50 * time.Millisecond):
	}

	if err := e.Listen(context.Background(), []string{"Bogus"}, func(error, string) {}); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestCloseReleasesHandle(t *testing.T) {
	e, err := New(context.Background(), engine.Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := e.SendMessage(context.Background(), `{"cmd":"GetAccounts"}`); !errors.Is(err, engine.ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed, got %v", err)
	}
	if err := e.Listen(context.Background(), nil, func(error, string) {}); !errors.Is(err, engine.ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed, got %v", err)
	}
}

func TestRegisteredAsLocalTransport(t *testing.T) {
	h, err := engine.Open(context.Background(), engine.TransportLocal, engine.Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()
	if _, ok := h.(*Engine); !ok {
		t.Fatalf("unexpected handle type %T", h)
	}
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	src := newTestEngine(t, engine.Options{SecretManager: mnemonicSecretJSON(t)})
	createAccount(t, src, "alpha")
	createAccount(t, src, "beta")
	dest := filepath.Join(dir, "wallet.backup")

	if kind := errorKindOf(t, send(t, src, models.CmdBackup, models.BackupPayload{Destination: dest})); kind != "backup" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	mustType(t, send(t, src, models.CmdBackup, models.BackupPayload{Destination: dest, Password: "backup-pass"}), models.RespOk)

	other, err := json.Marshal(models.SecretManager{Mnemonic: "legal winner thank year wave sausage worth useful legal winner thank yellow"})
	if err != nil {
		t.Fatalf("marshal secret manager failed: %v", err)
	}
	dst := newTestEngine(t, engine.Options{SecretManager: string(other)})
	if kind := errorKindOf(t, send(t, dst, models.CmdRestoreBackup, models.RestoreBackupPayload{Source: dest, Password: "nope"})); kind != "strongholdInvalidPassword" {
		t.Fatalf("unexpected error kind: %s", kind)
	}
	mustType(t, send(t, dst, models.CmdRestoreBackup, models.RestoreBackupPayload{Source: dest, Password: "backup-pass"}), models.RespOk)

	var accounts []models.Account
	if err := send(t, dst, models.CmdGetAccounts, nil).Decode(&accounts); err != nil {
		t.Fatalf("decode accounts failed: %v", err)
	}
	if len(accounts) != 2 || accounts[1].Alias != "beta" {
		t.Fatalf("unexpected restored accounts: %+v", accounts)
	}
	// The restored mnemonic must derive the same addresses as the source.
	third := createAccount(t, dst, "gamma")
	fromSource := createAccount(t, src, "gamma")
	if third.PublicAddresses[0].Address != fromSource.PublicAddresses[0].Address {
		t.Fatal("restored wallet derives different addresses")
	}
}

func TestRestoreBackupFailureKeepsWallet(t *testing.T) {
	const otherMnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"
	other, err := json.Marshal(models.SecretManager{Mnemonic: otherMnemonic})
	if err != nil {
		t.Fatalf("marshal secret manager failed: %v", err)
	}
	dst := newTestEngine(t, engine.Options{StoragePath: t.TempDir(), SecretManager: string(other)})
	ref := newTestEngine(t, engine.Options{SecretManager: string(other)})
	kept := createAccount(t, dst, "kept")
	createAccount(t, ref, "kept")

	dir := t.TempDir()
	cases := map[string]backupPayload{
		"bad node": {
			Version:       backupVersion,
			ClientOptions: &models.ClientOptions{Nodes: []string{"ftp://node.invalid"}},
			Mnemonic:      testMnemonic,
			Accounts:      []models.Account{{Index: 0, Alias: "replaced"}},
		},
		"bad mnemonic": {
			Version:  backupVersion,
			Mnemonic: "not a real mnemonic",
			Accounts: []models.Account{{Index: 0, Alias: "replaced"}},
		},
	}
	for name, payload := range cases {
		source := filepath.Join(dir, strings.ReplaceAll(name, " ", "-")+".backup")
		if err := securestore.WriteJSON(source, "backup-pass", payload); err != nil {
			t.Fatalf("%s: write backup failed: %v", name, err)
		}
		mustType(t, send(t, dst, models.CmdRestoreBackup, models.RestoreBackupPayload{Source: source, Password: "backup-pass"}), models.RespError)

		var accounts []models.Account
		if err := send(t, dst, models.CmdGetAccounts, nil).Decode(&accounts); err != nil {
			t.Fatalf("%s: decode accounts failed: %v", name, err)
		}
		if len(accounts) != 1 || accounts[0].Alias != "kept" || accounts[0].PublicAddresses[0].Address != kept.PublicAddresses[0].Address {
			t.Fatalf("%s: failed restore changed the accounts: %+v", name, accounts)
		}
	}

	// The seed is still the original one.
	next := createAccount(t, dst, "next")
	want := createAccount(t, ref, "next")
	if next.PublicAddresses[0].Address != want.PublicAddresses[0].Address {
		t.Fatal("failed restore replaced the mnemonic")
	}
}

func TestDeleteStorageDropsAccounts(t *testing.T) {
	e := newTestEngine(t, engine.Options{StoragePath: t.TempDir(), SecretManager: mnemonicSecretJSON(t)})
	createAccount(t, e, "a")
	mustType(t, send(t, e, models.CmdDeleteStorage, nil), models.RespOk)
	var accounts []models.Account
	if err := send(t, e, models.CmdGetAccounts, nil).Decode(&accounts); err != nil {
		t.Fatalf("decode accounts failed: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(accounts))
	}
}
