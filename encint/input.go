package encint

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/dutchauction/core"
)

// EncryptedInput carries an externally produced encrypted amount into the
// engine: hybrid RSA-OAEP + AES-256-GCM under the engine's input key. The
// bidder address is bound inside the authenticated payload, so an input
// cannot be replayed by or for a different account; that binding is the
// input's proof.
type EncryptedInput struct {
	Bidder          core.Address `cbor:"bidder"`
	AESKeyEncrypted []byte       `cbor:"aes_key_encrypted"`
	Payload         []byte       `cbor:"payload"`
	Nonce           []byte       `cbor:"nonce"`
}

// inputPlaintext is the authenticated interior of an EncryptedInput.
type inputPlaintext struct {
	Bidder core.Address `cbor:"bidder"`
	Amount uint64       `cbor:"amount"`
}

// SealInput encrypts an amount for submission by the given bidder. This runs
// client-side against the engine's published input key.
func SealInput(publicKey *rsa.PublicKey, bidder core.Address, amount uint64) (*EncryptedInput, error) {
	if bidder == core.Zero {
		return nil, fmt.Errorf("seal input: empty bidder address")
	}

	plain, err := cbor.Marshal(inputPlaintext{Bidder: bidder, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("encode input payload: %w", err)
	}

	aesKey := make([]byte, 32)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("generate AES key: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("encrypt AES key: %w", err)
	}

	return &EncryptedInput{
		Bidder:          bidder,
		AESKeyEncrypted: encryptedKey,
		Payload:         aead.Seal(nil, nonce, plain, nil),
		Nonce:           nonce,
	}, nil
}

// Marshal encodes the input for wire transport.
func (in *EncryptedInput) Marshal() ([]byte, error) {
	return cbor.Marshal(in)
}

// UnmarshalInput decodes a wire-transported input.
func UnmarshalInput(data []byte) (*EncryptedInput, error) {
	var in EncryptedInput
	if err := cbor.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode encrypted input: %w", err)
	}
	return &in, nil
}

// ImportInput verifies and imports an external encrypted amount into the
// scope. The payload must decrypt under the engine's input key and its bound
// bidder must match both the envelope and the expected submitter; anything
// else is rejected before a value is created.
func (s *Scope) ImportInput(in *EncryptedInput, expected core.Address) (Value, error) {
	if in == nil {
		return Value{}, fmt.Errorf("nil encrypted input")
	}
	if in.Bidder != expected {
		return Value{}, fmt.Errorf("input bound to %q, submitted for %q: %w", in.Bidder, expected, ErrAccessDenied)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, s.eng.inputKey, in.AESKeyEncrypted, nil)
	if err != nil {
		return Value{}, fmt.Errorf("decrypt input AES key: %w", err)
	}
	if len(aesKey) != 32 {
		return Value{}, fmt.Errorf("invalid AES key length: expected 32 bytes, got %d", len(aesKey))
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return Value{}, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return Value{}, fmt.Errorf("create GCM: %w", err)
	}
	if len(in.Nonce) != aead.NonceSize() {
		return Value{}, fmt.Errorf("invalid nonce length: expected %d bytes, got %d", aead.NonceSize(), len(in.Nonce))
	}

	plain, err := aead.Open(nil, in.Nonce, in.Payload, nil)
	if err != nil {
		return Value{}, fmt.Errorf("decrypt input payload: %w", err)
	}

	var payload inputPlaintext
	if err := cbor.Unmarshal(plain, &payload); err != nil {
		return Value{}, fmt.Errorf("decode input payload: %w", err)
	}
	if payload.Bidder != expected {
		return Value{}, fmt.Errorf("input payload bound to %q, submitted for %q: %w", payload.Bidder, expected, ErrAccessDenied)
	}

	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	return s.fresh(payload.Amount)
}
