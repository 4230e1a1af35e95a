// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memnet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/msgbridge/lib/codec"
	"github.com/bureau-foundation/msgbridge/lib/secret"
	"github.com/bureau-foundation/msgbridge/protocol"
)

// keyBundleVersion is the current key bundle format.
const keyBundleVersion = 1

// keyBundle is the exported form of an account's private keys.
type keyBundle struct {
	Version int    `cbor:"version"`
	Address string `cbor:"address"`
	Seed    []byte `cbor:"seed"`
}

// DeriveAddress returns the account address of an identity public
// key: "0x" and the hex of the first 20 bytes of its BLAKE3 hash.
func DeriveAddress(public ed25519.PublicKey) string {
	digest := blake3.Sum256(public)
	return "0x" + hex.EncodeToString(digest[:20])
}

// identityStatement is the text an external signer is asked to sign
// when an account is created.
func identityStatement(public ed25519.PublicKey) []byte {
	return []byte("memnet: Create Identity\n" + hex.EncodeToString(public))
}

// Create authenticates account by asking it to sign a fresh identity
// key. The signature is checked for shape only.
func (n *Network) Create(ctx context.Context, account protocol.SigningKey, options protocol.Options) (protocol.Client, error) {
	address := account.Address()
	if address == "" {
		return nil, errors.New("memnet: signing key has no address")
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("memnet: generating identity key: %w", err)
	}
	seedBuffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, err
	}
	public := ed25519.NewKeyFromSeed(seedBuffer.Bytes()).Public().(ed25519.PublicKey)

	signature, err := account.Sign(ctx, identityStatement(public))
	if err != nil {
		seedBuffer.Close()
		return nil, fmt.Errorf("memnet: signing identity for %s: %w", address, err)
	}
	if err := checkSignatureShape(signature); err != nil {
		seedBuffer.Close()
		return nil, fmt.Errorf("memnet: identity signature for %s: %w", address, err)
	}

	return n.open(address, seedBuffer, options)
}

// CreateRandom creates an account whose address is derived from a
// freshly generated identity key. The key signs its own identity
// statement.
func (n *Network) CreateRandom(ctx context.Context, options protocol.Options) (protocol.Client, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("memnet: generating identity key: %w", err)
	}
	self := &selfSigner{address: DeriveAddress(public), private: private}

	signature, err := self.Sign(ctx, identityStatement(public))
	if err != nil {
		return nil, err
	}
	if err := checkSignatureShape(signature); err != nil {
		return nil, err
	}

	seedBuffer, err := secret.NewFromBytes(private.Seed())
	if err != nil {
		return nil, err
	}
	secret.Zero(private)
	return n.open(self.address, seedBuffer, options)
}

// FromKeyBundle restores a client from ExportKeyBundle output.
func (n *Network) FromKeyBundle(ctx context.Context, bundle []byte, options protocol.Options) (protocol.Client, error) {
	var decoded keyBundle
	if err := codec.UnmarshalStrict(bundle, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidKeyBundle, err)
	}
	if decoded.Version != keyBundleVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", protocol.ErrInvalidKeyBundle, decoded.Version)
	}
	if decoded.Address == "" {
		return nil, fmt.Errorf("%w: missing address", protocol.ErrInvalidKeyBundle)
	}
	if len(decoded.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes, want %d", protocol.ErrInvalidKeyBundle, len(decoded.Seed), ed25519.SeedSize)
	}

	seedBuffer, err := secret.NewFromBytes(decoded.Seed)
	if err != nil {
		return nil, err
	}
	return n.open(decoded.Address, seedBuffer, options)
}

// open registers the identity and builds the client. The client owns
// seed; on error seed is closed.
func (n *Network) open(address string, seed *secret.Buffer, options protocol.Options) (*Client, error) {
	public := ed25519.NewKeyFromSeed(seed.Bytes()).Public().(ed25519.PublicKey)
	if err := n.register(address, public); err != nil {
		seed.Close()
		return nil, err
	}
	n.logger.Info("client opened",
		"address", address,
		"environment", string(options.Environment),
		"secure", options.Secure,
		"app_version", options.AppVersion,
	)
	return &Client{network: n, address: address, seed: seed, options: options}, nil
}

func checkSignatureShape(signature protocol.Signature) error {
	if signature.Recovery > 3 {
		return fmt.Errorf("recovery id %d out of range", signature.Recovery)
	}
	if signature.Bytes == [64]byte{} {
		return errors.New("signature is all zeros")
	}
	return nil
}

// selfSigner signs with an account's own identity key.
type selfSigner struct {
	address string
	private ed25519.PrivateKey
}

func (s *selfSigner) Address() string { return s.address }

func (s *selfSigner) Sign(ctx context.Context, message []byte) (protocol.Signature, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Signature{}, err
	}
	var signature protocol.Signature
	copy(signature.Bytes[:], ed25519.Sign(s.private, message))
	return signature, nil
}

// Client is an account on a Network.
type Client struct {
	network *Network
	address string
	seed    *secret.Buffer
	options protocol.Options
}

var _ protocol.Client = (*Client)(nil)

func (c *Client) Address() string { return c.address }

// Options returns the options the client was created with.
func (c *Client) Options() protocol.Options { return c.options }

func (c *Client) ExportKeyBundle() ([]byte, error) {
	seed := append([]byte(nil), c.seed.Bytes()...)
	defer secret.Zero(seed)
	return codec.Marshal(keyBundle{Version: keyBundleVersion, Address: c.address, Seed: seed})
}

func (c *Client) CanMessage(ctx context.Context, peer string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.network.Registered(peer), nil
}

func (c *Client) Conversations() protocol.Conversations {
	return &conversations{client: c}
}

// Close releases the client's key material.
func (c *Client) Close() error {
	return c.seed.Close()
}
