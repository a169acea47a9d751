// Package encint provides arithmetic over encrypted 64-bit unsigned integers.
//
// Values are opaque handles; the ciphertexts and the sealing key live inside
// the engine, which in production runs inside an enclave. Callers operate on
// handles through a Scope and never see plaintexts. Every value produced by
// an operation is usable only within the scope that produced it unless it is
// explicitly persisted with Allow; reading a plaintext back out goes through
// Decrypt, which is reserved for accounts the value was allowed to (the
// decryption oracle).
package encint

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudx-io/dutchauction/core"
)

var (
	ErrAccessDenied  = errors.New("no access to encrypted value")
	ErrUnknownHandle = errors.New("unknown ciphertext handle")
)

// Handle identifies a ciphertext held by the engine.
type Handle [32]byte

// Value is an opaque reference to an encrypted uint64.
type Value struct {
	h Handle
}

// Handle returns the raw handle, for wire transport.
func (v Value) Handle() Handle { return v.h }

// IsZero reports whether the value references nothing.
func (v Value) IsZero() bool { return v.h == Handle{} }

// ValueFromHandle rebuilds a Value from a transported handle.
func ValueFromHandle(h Handle) Value { return Value{h: h} }

type entry struct {
	ct  []byte
	acl map[core.Address]struct{}
}

// Engine holds the sealing key, the ciphertext store, and the per-handle
// access lists. It also owns the RSA key bidders encrypt external inputs
// under.
type Engine struct {
	mu       sync.Mutex
	aead     cipher.AEAD
	inputKey *rsa.PrivateKey
	store    map[Handle]*entry
}

// NewEngine generates a fresh AES-256-GCM sealing key and RSA-2048 input key.
// In an enclave, crypto/rand uses NSM-enhanced entropy.
func NewEngine() (*Engine, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	inputKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate input key pair: %w", err)
	}

	return &Engine{
		aead:     aead,
		inputKey: inputKey,
		store:    make(map[Handle]*entry),
	}, nil
}

// InputPublicKey returns the key external encrypted inputs must be sealed
// under.
func (e *Engine) InputPublicKey() *rsa.PublicKey {
	return &e.inputKey.PublicKey
}

// seal encrypts a plaintext under a fresh random handle. Caller holds e.mu.
func (e *Engine) seal(x uint64) (Value, error) {
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], x)

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Value{}, fmt.Errorf("generate nonce: %w", err)
	}

	var h Handle
	if _, err := rand.Read(h[:]); err != nil {
		return Value{}, fmt.Errorf("generate handle: %w", err)
	}

	ct := e.aead.Seal(nonce, nonce, plain[:], h[:])
	e.store[h] = &entry{ct: ct, acl: make(map[core.Address]struct{})}
	return Value{h: h}, nil
}

// open decrypts the ciphertext behind a handle. Caller holds e.mu.
func (e *Engine) open(v Value) (uint64, error) {
	ent, ok := e.store[v.h]
	if !ok {
		return 0, ErrUnknownHandle
	}

	ns := e.aead.NonceSize()
	if len(ent.ct) < ns {
		return 0, fmt.Errorf("ciphertext shorter than nonce: %w", ErrUnknownHandle)
	}
	plain, err := e.aead.Open(nil, ent.ct[:ns], ent.ct[ns:], v.h[:])
	if err != nil {
		return 0, fmt.Errorf("unseal value: %w", err)
	}
	return binary.BigEndian.Uint64(plain), nil
}

// Decrypt reveals the plaintext behind a value to a caller the value was
// allowed to. This is the decryption oracle's entry point; contracts must
// grant the oracle access before requesting a reveal.
func (e *Engine) Decrypt(caller core.Address, v Value) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.store[v.h]
	if !ok {
		return 0, ErrUnknownHandle
	}
	if _, allowed := ent.acl[caller]; !allowed {
		return 0, ErrAccessDenied
	}
	return e.open(v)
}
