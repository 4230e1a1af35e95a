// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore keeps account key bundles on disk, encrypted with an
// age scrypt recipient derived from an operator passphrase.
//
// Each bundle lives in its own armored age file named after the
// account address. Passphrases and decrypted bundles are held in
// secret.Buffer values; callers close them when done.
package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/msgbridge/lib/secret"
)

const fileSuffix = ".age"

// ErrNotFound is returned when no bundle is stored for an address.
var ErrNotFound = errors.New("keystore: no bundle for address")

// ErrWrongPassphrase is returned when the passphrase does not open a
// stored bundle.
var ErrWrongPassphrase = errors.New("keystore: wrong passphrase")

// Store is a directory of encrypted key bundles.
type Store struct {
	dir string

	// workFactor is the scrypt log2 work factor for new files. Zero
	// uses age's default.
	workFactor int
}

// Open returns the store rooted at dir, creating the directory with
// owner-only permissions if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("keystore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: creating %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// SetWorkFactor sets the scrypt work factor for bundles saved from now
// on. Lower values are only appropriate for tests.
func (s *Store) SetWorkFactor(logN int) { s.workFactor = logN }

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(address string) (string, error) {
	if address == "" || strings.ContainsAny(address, `/\`) || strings.HasPrefix(address, ".") {
		return "", fmt.Errorf("keystore: invalid address %q", address)
	}
	return filepath.Join(s.dir, address+fileSuffix), nil
}

// Save encrypts bundle under passphrase and writes it for address,
// replacing any earlier bundle. The write is atomic.
func (s *Store) Save(address string, bundle []byte, passphrase *secret.Buffer) error {
	path, err := s.path(address)
	if err != nil {
		return err
	}
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	var ciphertext bytes.Buffer
	armored := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armored, recipient)
	if err != nil {
		return fmt.Errorf("keystore: creating encryptor: %w", err)
	}
	if _, err := writer.Write(bundle); err != nil {
		return fmt.Errorf("keystore: encrypting bundle: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("keystore: finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("keystore: finalizing armor: %w", err)
	}

	temporary, err := os.CreateTemp(s.dir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(ciphertext.Bytes()); err != nil {
		temporary.Close()
		return fmt.Errorf("keystore: writing %s: %w", address, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("keystore: writing %s: %w", address, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("keystore: storing %s: %w", address, err)
	}
	return nil
}

// Load decrypts the bundle stored for address. The caller closes the
// returned buffer.
func (s *Store) Load(address string, passphrase *secret.Buffer) (*secret.Buffer, error) {
	path, err := s.path(address)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	defer file.Close()

	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(file), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return nil, fmt.Errorf("%w for %s", ErrWrongPassphrase, address)
		}
		return nil, fmt.Errorf("keystore: decrypting %s: %w", address, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("keystore: reading %s: %w", address, err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("keystore: bundle for %s is empty", address)
	}
	return secret.NewFromBytes(plaintext)
}

// List returns the stored addresses in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	var addresses []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		addresses = append(addresses, strings.TrimSuffix(name, fileSuffix))
	}
	slices.Sort(addresses)
	return addresses, nil
}

// Delete removes the bundle for address.
func (s *Store) Delete(address string) error {
	path, err := s.path(address)
	if err != nil {
		return err
	}
	if err := os.Remove(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w %s", ErrNotFound, address)
	} else if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	return nil
}
