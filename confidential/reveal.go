package confidential

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
	"github.com/cloudx-io/dutchauction/oracle"
)

var (
	ErrNoOracle        = errors.New("auction has no decryption oracle")
	ErrUnknownReveal   = errors.New("reveal result does not match an outstanding request")
	ErrMalformedReveal = errors.New("reveal result carries no plaintext")
)

// revealGate tracks outstanding tokensLeft reveal requests and the latest
// revealed plaintext. Requests are not deduplicated; when several are in
// flight the last callback to arrive wins.
type revealGate struct {
	pending map[uuid.UUID]struct{}
	value   uint64
	ok      bool
}

func newRevealGate() revealGate {
	return revealGate{pending: make(map[uuid.UUID]struct{})}
}

// RequestTokensLeftReveal asks the oracle to decrypt the unsold-token
// counter. Seller only; the result arrives via OnDecryptionCallback when the
// oracle fulfills the request, or never if the deadline passes first.
func (a *Auction) RequestTokensLeftReveal(now uint64, caller core.Address, deadline uint64) (uuid.UUID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return uuid.Nil, core.ErrNotStarted
	}
	if caller != a.params.Seller {
		return uuid.Nil, core.ErrNotSeller
	}
	if a.oracle == nil {
		return uuid.Nil, ErrNoOracle
	}

	s := a.eng.Scope(a.escrow)
	if err := s.Allow(a.tokensLeft, a.oracle.Address()); err != nil {
		return uuid.Nil, err
	}

	id, err := a.oracle.RequestDecryption([]encint.Value{a.tokensLeft}, deadline, a.OnDecryptionCallback)
	if err != nil {
		return uuid.Nil, fmt.Errorf("request tokensLeft reveal: %w", err)
	}

	a.reveal.pending[id] = struct{}{}
	return id, nil
}

// OnDecryptionCallback receives a signed reveal result from the oracle. The
// signature is checked against the oracle's key and the correlation id
// against our outstanding requests before the plaintext is accepted.
func (a *Auction) OnDecryptionCallback(signedResult []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.oracle == nil {
		return ErrNoOracle
	}
	result, err := oracle.VerifyResult(signedResult, a.oracle.PublicKey())
	if err != nil {
		return fmt.Errorf("verify reveal result: %w", err)
	}
	if _, ok := a.reveal.pending[result.RequestID]; !ok {
		return fmt.Errorf("request %s: %w", result.RequestID, ErrUnknownReveal)
	}
	if len(result.Plaintexts) != 1 {
		return fmt.Errorf("request %s: %w", result.RequestID, ErrMalformedReveal)
	}

	delete(a.reveal.pending, result.RequestID)
	a.reveal.value = result.Plaintexts[0]
	a.reveal.ok = true
	return nil
}

// TokensLeftReveal returns the most recently revealed unsold-token count.
// The plaintext is a snapshot from the time the oracle fulfilled the
// request, not a live counter.
func (a *Auction) TokensLeftReveal() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reveal.value, a.reveal.ok
}
