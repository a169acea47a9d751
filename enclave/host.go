package main

import (
	"fmt"
	"log"
	"sync"

	"github.com/cloudx-io/dutchauction/confidential"
	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
	"github.com/cloudx-io/dutchauction/enclaveapi"
	"github.com/cloudx-io/dutchauction/oracle"
	"github.com/cloudx-io/dutchauction/token"
)

const (
	saleLedgerAddr    = core.Address("sale-ledger")
	paymentLedgerAddr = core.Address("payment-ledger")
	revealOracleAddr  = core.Address("reveal-oracle")
)

// AuctionHost owns the in-enclave state: the encrypted-value engine, the two
// confidential ledgers, the decryption oracle, and the registry of running
// auctions. All balances and bid amounts live inside the engine; the host
// only ever handles handles.
type AuctionHost struct {
	mu       sync.Mutex
	eng      *encint.Engine
	sale     *token.Confidential
	payment  *token.Confidential
	oracle   *oracle.Oracle
	auctions map[string]*confidential.Auction
}

func NewAuctionHost() (*AuctionHost, error) {
	eng, err := encint.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	orc, err := oracle.New(eng, revealOracleAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oracle: %w", err)
	}

	return &AuctionHost{
		eng:      eng,
		sale:     token.NewConfidential(eng, saleLedgerAddr),
		payment:  token.NewConfidential(eng, paymentLedgerAddr),
		oracle:   orc,
		auctions: make(map[string]*confidential.Auction),
	}, nil
}

// Engine exposes the encrypted-value engine for key distribution.
func (h *AuctionHost) Engine() *encint.Engine { return h.eng }

func (h *AuctionHost) lookup(id string) (*confidential.Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return nil, fmt.Errorf("unknown auction %q", id)
	}
	return a, nil
}

// CreateAuction registers a new confidential auction under the request id.
// The escrow identity is derived from the auction id, so auctions never
// share escrow accounts.
func (h *AuctionHost) CreateAuction(req enclaveapi.CreateAuctionRequest) any {
	if req.AuctionID == "" {
		return enclaveapi.ErrorResponse{Type: "error", Message: "auction_id is required"}
	}

	params, err := req.Params.Core()
	if err != nil {
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("invalid params: %v", err)}
	}

	escrow := core.Address("escrow:" + req.AuctionID)
	a, err := confidential.New(params, escrow, h.eng, h.sale, h.payment, h.oracle)
	if err != nil {
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("create auction: %v", err)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.auctions[req.AuctionID]; exists {
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("auction %q already exists", req.AuctionID)}
	}
	h.auctions[req.AuctionID] = a

	log.Printf("INFO: Created auction %s (seller=%s, total=%d, price=%s..%s)",
		req.AuctionID, params.Seller, params.TotalAmount,
		core.FormatUnits(params.StartingPrice), core.FormatUnits(params.ReservePrice))

	return enclaveapi.AuctionOpResponse{Type: "auction_op_response", Success: true, Message: "auction created"}
}

// Mint credits tokens on one of the host ledgers.
func (h *AuctionHost) Mint(req enclaveapi.MintRequest) any {
	var ledger *token.Confidential
	switch req.Ledger {
	case "sale":
		ledger = h.sale
	case "payment":
		ledger = h.payment
	default:
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("unknown ledger %q", req.Ledger)}
	}

	if err := ledger.Mint(core.Address(req.Account), req.Amount); err != nil {
		return enclaveapi.ErrorResponse{Type: "error", Message: fmt.Sprintf("mint failed: %v", err)}
	}

	log.Printf("INFO: Minted %d %s tokens to %s", req.Amount, req.Ledger, req.Account)
	return enclaveapi.AuctionOpResponse{Type: "auction_op_response", Success: true, Message: "minted"}
}

// HandleOp dispatches one auction operation.
func (h *AuctionHost) HandleOp(req enclaveapi.AuctionOpRequest) enclaveapi.AuctionOpResponse {
	fail := func(err error) enclaveapi.AuctionOpResponse {
		log.Printf("INFO: Auction %s op %s failed: %v", req.AuctionID, req.Op, err)
		return enclaveapi.AuctionOpResponse{Type: "auction_op_response", Success: false, Message: err.Error()}
	}

	a, err := h.lookup(req.AuctionID)
	if err != nil {
		return fail(err)
	}
	caller := core.Address(req.Caller)

	switch req.Op {
	case enclaveapi.OpInitialize:
		err = a.Initialize(req.Timestamp, caller)
	case enclaveapi.OpBid:
		if req.Amount == nil {
			return fail(fmt.Errorf("bid requires an encrypted amount"))
		}
		var input *encint.EncryptedInput
		input, err = req.Amount.Decode()
		if err != nil {
			return fail(fmt.Errorf("decode encrypted amount: %w", err))
		}
		err = a.Bid(req.Timestamp, caller, input)
	case enclaveapi.OpStop:
		err = a.Stop(req.Timestamp, caller)
	case enclaveapi.OpCancel:
		err = a.CancelAuction(req.Timestamp, caller)
	case enclaveapi.OpClaimUser:
		err = a.ClaimUser(req.Timestamp, caller)
	case enclaveapi.OpClaimSeller:
		err = a.ClaimSeller(req.Timestamp, caller)
	case enclaveapi.OpRequestReveal:
		id, rerr := a.RequestTokensLeftReveal(req.Timestamp, caller, req.Deadline)
		if rerr != nil {
			return fail(rerr)
		}
		log.Printf("INFO: Auction %s reveal requested (id=%s, deadline=%d)", req.AuctionID, id, req.Deadline)
		return enclaveapi.AuctionOpResponse{
			Type: "auction_op_response", Success: true, RequestID: id.String(),
		}
	default:
		return fail(fmt.Errorf("unknown op %q", req.Op))
	}

	if err != nil {
		return fail(err)
	}
	log.Printf("INFO: Auction %s op %s by %s applied at t=%d", req.AuctionID, req.Op, req.Caller, req.Timestamp)
	return enclaveapi.AuctionOpResponse{Type: "auction_op_response", Success: true}
}

// Status reads the public view of an auction.
func (h *AuctionHost) Status(req enclaveapi.StatusRequest) any {
	a, err := h.lookup(req.AuctionID)
	if err != nil {
		return enclaveapi.ErrorResponse{Type: "error", Message: err.Error()}
	}

	resp := enclaveapi.StatusResponse{
		Type:      "status_response",
		AuctionID: req.AuctionID,
		Params:    enclaveapi.WireParams(a.Params()),
		Price:     core.FormatUnits(a.Price(req.Timestamp)),
		Started:   a.Started(),
		Cancelled: a.Cancelled(),
	}
	if left, ok := a.TokensLeftReveal(); ok {
		resp.TokensLeftReveal = &left
	}
	return resp
}

// FulfillReveals pumps the oracle once. Expired requests are dropped; the
// rest are decrypted, signed, and delivered to their auctions.
func (h *AuctionHost) FulfillReveals(req enclaveapi.FulfillRevealsRequest) enclaveapi.FulfillRevealsResponse {
	delivered, err := h.oracle.Fulfill(req.Timestamp)
	resp := enclaveapi.FulfillRevealsResponse{Type: "fulfill_reveals_response", Delivered: delivered}
	if err != nil {
		resp.Message = err.Error()
		log.Printf("WARNING: Some reveal requests failed: %v", err)
	}
	log.Printf("INFO: Fulfilled %d reveal requests at t=%d", delivered, req.Timestamp)
	return resp
}
