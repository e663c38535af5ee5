package main

import (
	"testing"
)

func TestParseAccountID(t *testing.T) {
	id := parseAccountID("3")
	if !id.IsIndex() || *id.Index != 3 {
		t.Fatalf("expected index 3, got %+v", id)
	}
	id = parseAccountID("savings")
	if id.IsIndex() || id.Alias != "savings" {
		t.Fatalf("expected alias, got %+v", id)
	}
	id = parseAccountID("99999999999")
	if id.IsIndex() {
		t.Fatal("values beyond uint32 are aliases")
	}
}

func TestEveryCommandBuildsFlagSet(t *testing.T) {
	for name := range commands {
		fs, g := newFlagSet(name)
		if fs.Name() != name || g.transport == "" {
			t.Fatalf("unexpected flag set for %s", name)
		}
	}
}

func TestTransportFlagDefaultsFromEnv(t *testing.T) {
	t.Setenv("WALLET_ENGINE_TRANSPORT", "local")
	fs, g := newFlagSet("accounts")
	if err := fs.Parse([]string{"--storage-path", ""}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if g.transport != "local" {
		t.Fatalf("expected env transport, got %q", g.transport)
	}
}
