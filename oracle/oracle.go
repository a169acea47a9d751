// Package oracle implements the decryption oracle the confidential auction
// relies on: it accepts batches of encrypted handles with a callback and a
// deadline, decrypts them through the engine's access-controlled path, and
// delivers COSE-signed plaintext results exactly once per accepted request.
package oracle

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
)

var (
	ErrNoValues        = errors.New("reveal request carries no values")
	ErrDeadlineElapsed = errors.New("reveal request deadline has elapsed")
)

// RevealResult is the signed payload delivered to callbacks.
type RevealResult struct {
	RequestID  uuid.UUID `cbor:"request_id"`
	Plaintexts []uint64  `cbor:"plaintexts"`
}

// Callback receives the COSE_Sign1-encoded RevealResult for one request.
// It is invoked exactly once per accepted request.
type Callback func(signedResult []byte) error

type request struct {
	values   []encint.Value
	deadline uint64
	cb       Callback
}

// Oracle decrypts encrypted values on request and signs the results with its
// ES384 key. It holds no auction state; correlation ids are its only memory.
type Oracle struct {
	mu      sync.Mutex
	addr    core.Address
	eng     *encint.Engine
	key     *ecdsa.PrivateKey
	signer  cose.Signer
	pending map[uuid.UUID]request
}

// New creates an oracle with a fresh P-384 signing key. Contracts must allow
// values to addr before requesting their decryption.
func New(eng *encint.Engine, addr core.Address) (*Oracle, error) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate oracle signing key: %w", err)
	}
	signer, err := cose.NewSigner(cose.AlgorithmES384, key)
	if err != nil {
		return nil, fmt.Errorf("create COSE signer: %w", err)
	}

	return &Oracle{
		addr:    addr,
		eng:     eng,
		key:     key,
		signer:  signer,
		pending: make(map[uuid.UUID]request),
	}, nil
}

// Address returns the oracle's engine identity.
func (o *Oracle) Address() core.Address { return o.addr }

// PublicKey returns the key callbacks verify results against.
func (o *Oracle) PublicKey() *ecdsa.PublicKey { return &o.key.PublicKey }

// RequestDecryption accepts a batch of handles for decryption. The request is
// fire-and-forget for the caller: the callback fires on some later Fulfill,
// or never, if the deadline passes first.
func (o *Oracle) RequestDecryption(values []encint.Value, deadline uint64, cb Callback) (uuid.UUID, error) {
	if len(values) == 0 {
		return uuid.Nil, ErrNoValues
	}
	if cb == nil {
		return uuid.Nil, errors.New("reveal request requires a callback")
	}

	id := uuid.New()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[id] = request{values: values, deadline: deadline, cb: cb}
	return id, nil
}

// Pending returns the number of outstanding requests.
func (o *Oracle) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Fulfill processes every outstanding request: expired ones are dropped,
// the rest are decrypted, signed, and delivered. Returns the number of
// callbacks invoked. A request whose decryption or delivery fails is dropped
// with the error reported; it is never retried.
func (o *Oracle) Fulfill(now uint64) (int, error) {
	o.mu.Lock()
	batch := o.pending
	o.pending = make(map[uuid.UUID]request)
	o.mu.Unlock()

	delivered := 0
	var errs []error

	for id, req := range batch {
		if now >= req.deadline {
			errs = append(errs, fmt.Errorf("request %s: %w", id, ErrDeadlineElapsed))
			continue
		}

		signed, err := o.fulfillOne(id, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", id, err))
			continue
		}
		if err := req.cb(signed); err != nil {
			errs = append(errs, fmt.Errorf("request %s callback: %w", id, err))
			continue
		}
		delivered++
	}

	return delivered, errors.Join(errs...)
}

func (o *Oracle) fulfillOne(id uuid.UUID, req request) ([]byte, error) {
	plaintexts := make([]uint64, 0, len(req.values))
	for _, v := range req.values {
		x, err := o.eng.Decrypt(o.addr, v)
		if err != nil {
			return nil, fmt.Errorf("decrypt handle: %w", err)
		}
		plaintexts = append(plaintexts, x)
	}

	payload, err := cbor.Marshal(RevealResult{RequestID: id, Plaintexts: plaintexts})
	if err != nil {
		return nil, fmt.Errorf("encode reveal result: %w", err)
	}

	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmES384,
		},
	}
	signed, err := cose.Sign1(rand.Reader, o.signer, headers, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("sign reveal result: %w", err)
	}
	return signed, nil
}

// VerifyResult checks a COSE_Sign1-encoded reveal result against the oracle's
// public key and decodes the payload. Receivers must still match the
// correlation id against their own outstanding requests.
func VerifyResult(signed []byte, key *ecdsa.PublicKey) (*RevealResult, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(signed); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, key)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("reveal signature verification failed: %w", err)
	}

	var result RevealResult
	if err := cbor.Unmarshal(msg.Payload, &result); err != nil {
		return nil, fmt.Errorf("decode reveal result: %w", err)
	}
	return &result, nil
}
