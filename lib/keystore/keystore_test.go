// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/msgbridge/lib/secret"
)

func passphrase(t *testing.T, text string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(text))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "keys"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.SetWorkFactor(10)
	return store
}

func TestSaveLoad(t *testing.T) {
	store := openStore(t)
	bundle := []byte("bundle bytes for alice")

	if err := store.Save("0xalice", bundle, passphrase(t, "correct horse")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(store.Dir(), "0xalice.age"))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if !strings.HasPrefix(string(raw), "-----BEGIN AGE ENCRYPTED FILE-----") {
		t.Errorf("stored file is not armored: %q", raw[:min(len(raw), 40)])
	}
	if strings.Contains(string(raw), "alice") {
		t.Error("stored file contains plaintext")
	}

	loaded, err := store.Load("0xalice", passphrase(t, "correct horse"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if !loaded.Equal(bundle) {
		t.Errorf("loaded %q, want %q", loaded.Bytes(), bundle)
	}
}

func TestLoadWrongPassphrase(t *testing.T) {
	store := openStore(t)
	if err := store.Save("0xbob", []byte("secret"), passphrase(t, "right")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load("0xbob", passphrase(t, "wrong")); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Load error = %v, want ErrWrongPassphrase", err)
	}
}

func TestLoadMissing(t *testing.T) {
	store := openStore(t)
	if _, err := store.Load("0xnobody", passphrase(t, "pw")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("0xnobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	store := openStore(t)
	for _, address := range []string{"0xcarol", "0xalice", "0xbob"} {
		if err := store.Save(address, []byte(address), passphrase(t, "pw")); err != nil {
			t.Fatalf("Save %s: %v", address, err)
		}
	}
	// Stray files are ignored.
	os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o600)

	addresses, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"0xalice", "0xbob", "0xcarol"}; !slices.Equal(addresses, want) {
		t.Errorf("List = %v, want %v", addresses, want)
	}

	if err := store.Delete("0xbob"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	addresses, _ = store.List()
	if want := []string{"0xalice", "0xcarol"}; !slices.Equal(addresses, want) {
		t.Errorf("List after delete = %v, want %v", addresses, want)
	}
}

func TestSaveReplaces(t *testing.T) {
	store := openStore(t)
	store.Save("0xalice", []byte("old"), passphrase(t, "pw"))
	if err := store.Save("0xalice", []byte("new"), passphrase(t, "pw2")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load("0xalice", passphrase(t, "pw2"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()
	if !loaded.Equal([]byte("new")) {
		t.Errorf("loaded %q", loaded.Bytes())
	}
}

func TestInvalidAddresses(t *testing.T) {
	store := openStore(t)
	for _, address := range []string{"", "../escape", "a/b", ".hidden"} {
		if err := store.Save(address, []byte("x"), passphrase(t, "pw")); err == nil {
			t.Errorf("Save(%q) succeeded", address)
		}
	}
}
