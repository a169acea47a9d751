// Package enclaveapi defines the JSON wire types spoken between the enclave
// host and its clients over vsock, plus the attestation document structures
// relying parties validate.
package enclaveapi

import (
	"encoding/base64"
	"fmt"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
)

// Request carries the type discriminator every message starts with.
type Request struct {
	Type string `json:"type"`
}

// Auction operation names accepted in AuctionOpRequest.Op.
const (
	OpInitialize    = "initialize"
	OpBid           = "bid"
	OpStop          = "stop"
	OpCancel        = "cancel"
	OpClaimUser     = "claim_user"
	OpClaimSeller   = "claim_seller"
	OpRequestReveal = "request_reveal"
)

// AuctionParams is the wire form of the auction construction parameters.
// Monetary fields are decimal strings in display units; amounts and seconds
// are plain integers.
type AuctionParams struct {
	Seller        string `json:"seller"`
	StartingPrice string `json:"starting_price"`
	DiscountRate  string `json:"discount_rate"` // price decay per second
	ReservePrice  string `json:"reserve_price"`
	StartAt       uint64 `json:"start_at"`
	Duration      uint64 `json:"duration_seconds"`
	ClaimWindow   uint64 `json:"claim_window_seconds,omitempty"`
	TotalAmount   uint64 `json:"total_amount"`
	Stoppable     bool   `json:"stoppable"`
}

// Core converts the wire parameters into core.Params, parsing the decimal
// price strings into base units.
func (p AuctionParams) Core() (core.Params, error) {
	start, err := core.ParseUnits(p.StartingPrice)
	if err != nil {
		return core.Params{}, fmt.Errorf("starting_price: %w", err)
	}
	rate, err := core.ParseUnits(p.DiscountRate)
	if err != nil {
		return core.Params{}, fmt.Errorf("discount_rate: %w", err)
	}
	reserve, err := core.ParseUnits(p.ReservePrice)
	if err != nil {
		return core.Params{}, fmt.Errorf("reserve_price: %w", err)
	}

	return core.Params{
		Seller:        core.Address(p.Seller),
		StartingPrice: start,
		DiscountRate:  rate,
		ReservePrice:  reserve,
		StartAt:       p.StartAt,
		Duration:      p.Duration,
		ClaimWindow:   p.ClaimWindow,
		TotalAmount:   p.TotalAmount,
		Stoppable:     p.Stoppable,
	}, nil
}

// WireParams converts core parameters back to their wire form.
func WireParams(p core.Params) AuctionParams {
	return AuctionParams{
		Seller:        string(p.Seller),
		StartingPrice: core.FormatUnits(p.StartingPrice),
		DiscountRate:  core.FormatUnits(p.DiscountRate),
		ReservePrice:  core.FormatUnits(p.ReservePrice),
		StartAt:       p.StartAt,
		Duration:      p.Duration,
		ClaimWindow:   p.ClaimWindow,
		TotalAmount:   p.TotalAmount,
		Stoppable:     p.Stoppable,
	}
}

// EncryptedAmount is the wire form of an externally sealed bid amount:
// hybrid RSA-OAEP + AES-256-GCM under the enclave's published input key,
// fields base64-encoded for JSON transport.
type EncryptedAmount struct {
	Bidder          string `json:"bidder"`
	AESKeyEncrypted string `json:"aes_key_encrypted"`
	Payload         string `json:"payload"`
	Nonce           string `json:"nonce"`
}

// Decode converts the wire form into the engine's input envelope.
func (e *EncryptedAmount) Decode() (*encint.EncryptedInput, error) {
	key, err := base64.StdEncoding.DecodeString(e.AESKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decode aes_key_encrypted: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(e.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}

	return &encint.EncryptedInput{
		Bidder:          core.Address(e.Bidder),
		AESKeyEncrypted: key,
		Payload:         payload,
		Nonce:           nonce,
	}, nil
}

// EncodeAmount converts an input envelope into its wire form.
func EncodeAmount(in *encint.EncryptedInput) *EncryptedAmount {
	return &EncryptedAmount{
		Bidder:          string(in.Bidder),
		AESKeyEncrypted: base64.StdEncoding.EncodeToString(in.AESKeyEncrypted),
		Payload:         base64.StdEncoding.EncodeToString(in.Payload),
		Nonce:           base64.StdEncoding.EncodeToString(in.Nonce),
	}
}

// CreateAuctionRequest registers a new confidential auction under an id.
type CreateAuctionRequest struct {
	Type      string        `json:"type"` // "create_auction"
	AuctionID string        `json:"auction_id"`
	Params    AuctionParams `json:"params"`
}

// MintRequest credits tokens on one of the host's ledgers. Genesis
// distribution runs through the same wire surface as everything else.
type MintRequest struct {
	Type    string `json:"type"`   // "mint"
	Ledger  string `json:"ledger"` // "sale" or "payment"
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// AuctionOpRequest invokes one auction operation. Timestamp is the caller's
// unix-seconds clock; the enclave applies it as the operation time.
type AuctionOpRequest struct {
	Type      string           `json:"type"` // "auction_op"
	AuctionID string           `json:"auction_id"`
	Op        string           `json:"op"`
	Caller    string           `json:"caller"`
	Timestamp uint64           `json:"timestamp"`
	Amount    *EncryptedAmount `json:"amount,omitempty"`   // bid only
	Deadline  uint64           `json:"deadline,omitempty"` // request_reveal only
}

// AuctionOpResponse reports the outcome of one auction operation.
type AuctionOpResponse struct {
	Type      string `json:"type"` // "auction_op_response"
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"` // reveal correlation id
}

// StatusRequest reads an auction's public state.
type StatusRequest struct {
	Type      string `json:"type"` // "status"
	AuctionID string `json:"auction_id"`
	Timestamp uint64 `json:"timestamp"`
}

// StatusResponse is the public view of an auction: the current decimal unit
// price, lifecycle flags, and the latest revealed unsold-token count when a
// reveal has completed.
type StatusResponse struct {
	Type             string        `json:"type"` // "status_response"
	AuctionID        string        `json:"auction_id"`
	Params           AuctionParams `json:"params"`
	Price            string        `json:"price"`
	Started          bool          `json:"started"`
	Cancelled        bool          `json:"cancelled"`
	TokensLeftReveal *uint64       `json:"tokens_left_reveal,omitempty"`
}

// FulfillRevealsRequest pumps the decryption oracle: every outstanding
// reveal request is fulfilled or dropped against its deadline.
type FulfillRevealsRequest struct {
	Type      string `json:"type"` // "fulfill_reveals"
	Timestamp uint64 `json:"timestamp"`
}

// FulfillRevealsResponse reports how many reveal callbacks were delivered.
type FulfillRevealsResponse struct {
	Type      string `json:"type"` // "fulfill_reveals_response"
	Delivered int    `json:"delivered"`
	Message   string `json:"message,omitempty"`
}

// KeyResponse answers a key_request: the enclave's input public key in PEM
// form, attested by the NSM so bidders can verify they are sealing amounts
// for a genuine enclave.
type KeyResponse struct {
	Type                  string                `json:"type"` // "key_response"
	PublicKey             string                `json:"public_key"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64"`
}

// ErrorResponse is the uniform failure envelope.
type ErrorResponse struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
