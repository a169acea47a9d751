package confidential

import (
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/dutchauction/core"
	"github.com/cloudx-io/dutchauction/encint"
	"github.com/cloudx-io/dutchauction/oracle"
	"github.com/cloudx-io/dutchauction/token"
)

const (
	seller     = core.Address("seller")
	escrow     = core.Address("auction-escrow")
	oracleAddr = core.Address("reveal-oracle")
	alice      = core.Address("alice")
	bob        = core.Address("bob")
)

type fixture struct {
	eng     *encint.Engine
	auction *Auction
	sale    *token.Confidential
	payment *token.Confidential
	oracle  *oracle.Oracle
}

// newFixture builds a funded confidential auction with the same curve as the
// plaintext tests: startingPrice=1000, discountRate=1, duration=700,
// reservePrice=300, 500 tokens for sale, startAt=0.
func newFixture(t *testing.T, mutate func(*core.Params)) *fixture {
	t.Helper()

	params := core.Params{
		Seller:        seller,
		StartingPrice: 1000,
		DiscountRate:  1,
		ReservePrice:  300,
		StartAt:       0,
		Duration:      700,
		TotalAmount:   500,
	}
	if mutate != nil {
		mutate(&params)
	}

	eng, err := encint.NewEngine()
	assert.Nil(t, err)

	sale := token.NewConfidential(eng, "sale-ledger")
	payment := token.NewConfidential(eng, "payment-ledger")
	assert.Nil(t, sale.Mint(seller, params.TotalAmount))
	assert.Nil(t, payment.Mint(alice, 1_000_000))
	assert.Nil(t, payment.Mint(bob, 1_000_000))

	orc, err := oracle.New(eng, oracleAddr)
	assert.Nil(t, err)

	a, err := New(params, escrow, eng, sale, payment, orc)
	assert.Nil(t, err)
	assert.Nil(t, a.Initialize(0, seller))

	return &fixture{eng: eng, auction: a, sale: sale, payment: payment, oracle: orc}
}

// decryptAs reads a value's plaintext through an existing grant.
func decryptAs(t *testing.T, eng *encint.Engine, who core.Address, v encint.Value) uint64 {
	t.Helper()
	x, err := eng.Decrypt(who, v)
	assert.Nil(t, err)
	return x
}

// bid seals and submits an encrypted amount for the bidder.
func (f *fixture) bid(t *testing.T, now uint64, bidder core.Address, amount uint64) error {
	t.Helper()
	in, err := encint.SealInput(f.eng.InputPublicKey(), bidder, amount)
	assert.Nil(t, err)
	return f.auction.Bid(now, bidder, in)
}

// balanceAs decrypts a ledger balance through the owner's grant. Accounts
// that never held tokens read as zero.
func balanceAs(t *testing.T, f *fixture, l *token.Confidential, owner core.Address) uint64 {
	t.Helper()
	bal, ok := l.BalanceOf(owner)
	if !ok {
		return 0
	}
	return decryptAs(t, f.eng, owner, bal)
}

// position decrypts a bidder's committed tokens and paid amount.
func (f *fixture) position(t *testing.T, bidder core.Address) (tokens, paid uint64) {
	t.Helper()
	tokensV, paidV, ok := f.auction.UserBid(bidder)
	assert.True(t, ok)
	return decryptAs(t, f.eng, bidder, tokensV), decryptAs(t, f.eng, bidder, paidV)
}

func TestNewRejectsInvalidParams(t *testing.T) {
	eng, err := encint.NewEngine()
	assert.Nil(t, err)
	sale := token.NewConfidential(eng, "sale-ledger")
	payment := token.NewConfidential(eng, "payment-ledger")

	_, err = New(core.Params{Seller: seller}, escrow, eng, sale, payment, nil)
	check.Equal(t, core.ErrInvalidAmount, err, cmpopts.EquateErrors())

	_, err = New(core.Params{
		Seller:        seller,
		StartingPrice: 1000,
		DiscountRate:  1,
		ReservePrice:  300,
		Duration:      700,
		TotalAmount:   1,
	}, seller, eng, sale, payment, nil)
	check.Error(t, err)
}

func TestInitializeEscrowsEncryptedStock(t *testing.T) {
	f := newFixture(t, nil)

	check.True(t, f.auction.Started())
	check.Equal(t, uint64(500), decryptAs(t, f.eng, escrow, f.auction.TokensLeft()))
	check.Equal(t, uint64(0), balanceAs(t, f, f.sale, seller))

	check.Equal(t, core.ErrAlreadyStarted, f.auction.Initialize(0, seller), cmpopts.EquateErrors())
}

func TestInitializeUnderfundedSellerStartsEmpty(t *testing.T) {
	params := core.Params{
		Seller:        seller,
		StartingPrice: 1000,
		DiscountRate:  1,
		ReservePrice:  300,
		StartAt:       0,
		Duration:      700,
		TotalAmount:   500,
	}
	eng, err := encint.NewEngine()
	assert.Nil(t, err)
	sale := token.NewConfidential(eng, "sale-ledger")
	payment := token.NewConfidential(eng, "payment-ledger")
	assert.Nil(t, sale.Mint(seller, 100)) // short of TotalAmount

	a, err := New(params, escrow, eng, sale, payment, nil)
	assert.Nil(t, err)
	assert.Nil(t, a.Initialize(0, seller))

	// The escrow transfer moved nothing, so the auction started with zero
	// stock and every bid will collapse against it.
	check.True(t, a.Started())
	check.Equal(t, uint64(0), decryptAs(t, eng, escrow, a.TokensLeft()))

	in, err := encint.SealInput(eng.InputPublicKey(), alice, 1)
	assert.Nil(t, err)
	assert.Nil(t, payment.Mint(alice, 1_000_000))
	assert.Nil(t, a.Bid(400, alice, in))
	check.Equal(t, uint64(1_000_000), decryptAs(t, eng, alice, mustBalance(t, payment, alice)))
}

func mustBalance(t *testing.T, l *token.Confidential, owner core.Address) encint.Value {
	t.Helper()
	bal, ok := l.BalanceOf(owner)
	assert.True(t, ok)
	return bal
}

func TestBidCommitsAtCurrentPrice(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 400, alice, 50))

	tokens, paid := f.position(t, alice)
	check.Equal(t, uint64(50), tokens)
	check.Equal(t, uint64(30_000), paid) // 50 * price 600

	check.Equal(t, uint64(450), decryptAs(t, f.eng, escrow, f.auction.TokensLeft()))
	check.Equal(t, uint64(1_000_000-30_000), balanceAs(t, f, f.payment, alice))
	check.Equal(t, uint64(30_000), balanceAs(t, f, f.payment, escrow))
}

func TestBidRepriceChargesDelta(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 0, alice, 10))   // price 1000, pays 10000
	assert.Nil(t, f.bid(t, 400, alice, 20)) // price 600, position 30*600

	tokens, paid := f.position(t, alice)
	check.Equal(t, uint64(30), tokens)
	check.Equal(t, uint64(18_000), paid)
	check.Equal(t, uint64(1_000_000-18_000), balanceAs(t, f, f.payment, alice))
}

func TestBidRepriceRefundsDelta(t *testing.T) {
	f := newFixture(t, func(p *core.Params) {
		p.StartingPrice = 10
		p.DiscountRate = 1
		p.ReservePrice = 5
		p.Duration = 5
		p.TotalAmount = 100
	})

	assert.Nil(t, f.bid(t, 0, alice, 50)) // price 10, pays 500
	assert.Nil(t, f.bid(t, 4, alice, 30)) // price 6, position 80*6=480

	tokens, paid := f.position(t, alice)
	check.Equal(t, uint64(80), tokens)
	check.Equal(t, uint64(480), paid)
	check.Equal(t, uint64(1_000_000-480), balanceAs(t, f, f.payment, alice))
	check.Equal(t, uint64(20), decryptAs(t, f.eng, escrow, f.auction.TokensLeft()))
}

func TestBidOverCommitChangesNothing(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 400, alice, 501))

	tokens, paid := f.position(t, alice)
	check.Equal(t, uint64(0), tokens)
	check.Equal(t, uint64(0), paid)
	check.Equal(t, uint64(500), decryptAs(t, f.eng, escrow, f.auction.TokensLeft()))
	check.Equal(t, uint64(1_000_000), balanceAs(t, f, f.payment, alice))
}

func TestBidOverCommitDoesNotRepriceExistingPosition(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 0, alice, 10)) // price 1000, pays 10000
	// At price 600 this would reprice down, but the bid exceeds stock and
	// must leave the position exactly as it was.
	assert.Nil(t, f.bid(t, 400, alice, 491))

	tokens, paid := f.position(t, alice)
	check.Equal(t, uint64(10), tokens)
	check.Equal(t, uint64(10_000), paid)
	check.Equal(t, uint64(1_000_000-10_000), balanceAs(t, f, f.payment, alice))
}

func TestBidInsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t, nil)

	poor := core.Address("carol")
	assert.Nil(t, f.payment.Mint(poor, 100))

	assert.Nil(t, f.bid(t, 400, poor, 50)) // charge 30000 > balance 100

	tokens, paid := f.position(t, poor)
	check.Equal(t, uint64(0), tokens)
	check.Equal(t, uint64(0), paid)
	check.Equal(t, uint64(500), decryptAs(t, f.eng, escrow, f.auction.TokensLeft()))
	check.Equal(t, uint64(100), balanceAs(t, f, f.payment, poor))
}

func TestBidRejectsForeignInput(t *testing.T) {
	f := newFixture(t, nil)

	in, err := encint.SealInput(f.eng.InputPublicKey(), bob, 10)
	assert.Nil(t, err)
	check.Error(t, f.auction.Bid(400, alice, in))
}

func TestBidGuards(t *testing.T) {
	f := newFixture(t, nil)

	in, err := encint.SealInput(f.eng.InputPublicKey(), seller, 10)
	assert.Nil(t, err)
	check.Error(t, f.auction.Bid(400, seller, in))

	in, err = encint.SealInput(f.eng.InputPublicKey(), alice, 10)
	assert.Nil(t, err)
	check.Equal(t, core.ErrTooLate, f.auction.Bid(700, alice, in), cmpopts.EquateErrors())
}

func TestStopFreezesPrice(t *testing.T) {
	f := newFixture(t, func(p *core.Params) { p.Stoppable = true })

	assert.Nil(t, f.bid(t, 400, alice, 50)) // price 600
	assert.Nil(t, f.auction.Stop(400, seller))

	in, err := encint.SealInput(f.eng.InputPublicKey(), alice, 1)
	assert.Nil(t, err)
	check.Equal(t, core.ErrTooLate, f.auction.Bid(500, alice, in), cmpopts.EquateErrors())

	// Final price stays 600 after stopping, so the claim refunds nothing.
	assert.Nil(t, f.auction.ClaimUser(500, alice))
	check.Equal(t, uint64(1_000_000-30_000), balanceAs(t, f, f.payment, alice))
	check.Equal(t, uint64(50), balanceAs(t, f, f.sale, alice))
}

func TestStopRequiresStoppable(t *testing.T) {
	f := newFixture(t, nil)
	check.Equal(t, core.ErrNotStoppable, f.auction.Stop(400, seller), cmpopts.EquateErrors())
}

func TestClaimUserRefundsPriceDifference(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 0, alice, 50)) // price 1000, pays 50000

	check.Equal(t, core.ErrTooEarly, f.auction.ClaimUser(600, alice), cmpopts.EquateErrors())

	// Final price is the reserve, 300: refund 50000 - 15000.
	assert.Nil(t, f.auction.ClaimUser(700, alice))
	check.Equal(t, uint64(1_000_000-15_000), balanceAs(t, f, f.payment, alice))
	check.Equal(t, uint64(50), balanceAs(t, f, f.sale, alice))

	check.Equal(t, core.ErrNothingToClaim, f.auction.ClaimUser(700, alice), cmpopts.EquateErrors())
}

func TestClaimSellerProceedsAndUnsold(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 400, alice, 150)) // price 600, pays 90000

	check.Equal(t, core.ErrTooEarly, f.auction.ClaimSeller(600, seller), cmpopts.EquateErrors())
	check.Equal(t, core.ErrNotSeller, f.auction.ClaimSeller(700, alice), cmpopts.EquateErrors())

	// Proceeds are 150 tokens at the final price 300 plus the unsold 350.
	assert.Nil(t, f.auction.ClaimSeller(700, seller))
	check.Equal(t, uint64(45_000), balanceAs(t, f, f.payment, seller))
	check.Equal(t, uint64(350), balanceAs(t, f, f.sale, seller))

	check.Equal(t, core.ErrNothingToClaim, f.auction.ClaimSeller(700, seller), cmpopts.EquateErrors())

	// Alice's refund is still covered by what remains in escrow.
	assert.Nil(t, f.auction.ClaimUser(700, alice))
	check.Equal(t, uint64(1_000_000-45_000), balanceAs(t, f, f.payment, alice))
	check.Equal(t, uint64(0), balanceAs(t, f, f.payment, escrow))
}

func TestClaimDeadlineForfeitsAndSweeps(t *testing.T) {
	f := newFixture(t, func(p *core.Params) { p.ClaimWindow = 100 })

	assert.Nil(t, f.bid(t, 400, alice, 150)) // pays 90000

	check.Equal(t, core.ErrTooLate, f.auction.ClaimUser(800, alice), cmpopts.EquateErrors())

	// The seller's post-deadline claim takes proceeds plus the forfeited
	// escrow residue.
	assert.Nil(t, f.auction.ClaimSeller(800, seller))
	check.Equal(t, uint64(90_000), balanceAs(t, f, f.payment, seller))
	check.Equal(t, uint64(0), balanceAs(t, f, f.payment, escrow))
	check.Equal(t, uint64(0), balanceAs(t, f, f.sale, escrow))
}

func TestCancelReturnsUnsoldAndUnwindsBids(t *testing.T) {
	f := newFixture(t, nil)

	assert.Nil(t, f.bid(t, 400, alice, 50)) // pays 30000
	assert.Nil(t, f.auction.CancelAuction(500, seller))
	check.True(t, f.auction.Cancelled())

	check.Equal(t, uint64(450), balanceAs(t, f, f.sale, seller))

	in, err := encint.SealInput(f.eng.InputPublicKey(), bob, 10)
	assert.Nil(t, err)
	check.Equal(t, core.ErrTooLate, f.auction.Bid(500, bob, in), cmpopts.EquateErrors())

	// The open position unwinds in full: money back to alice, tokens back to
	// the seller.
	assert.Nil(t, f.auction.ClaimUser(500, alice))
	check.Equal(t, uint64(1_000_000), balanceAs(t, f, f.payment, alice))
	check.Equal(t, uint64(500), balanceAs(t, f, f.sale, seller))
	check.Equal(t, uint64(0), balanceAs(t, f, f.sale, alice))
}

func TestCancelGuards(t *testing.T) {
	f := newFixture(t, nil)

	check.Equal(t, core.ErrNotSeller, f.auction.CancelAuction(400, alice), cmpopts.EquateErrors())
	assert.Nil(t, f.auction.CancelAuction(400, seller))
	check.Equal(t, core.ErrTooLate, f.auction.CancelAuction(450, seller), cmpopts.EquateErrors())
}

func TestGuardOrderExistenceBeforeTimeBeforeRole(t *testing.T) {
	params := core.Params{
		Seller:        seller,
		StartingPrice: 1000,
		DiscountRate:  1,
		ReservePrice:  300,
		StartAt:       0,
		Duration:      700,
		TotalAmount:   500,
	}
	eng, err := encint.NewEngine()
	assert.Nil(t, err)
	sale := token.NewConfidential(eng, "sale-ledger")
	payment := token.NewConfidential(eng, "payment-ledger")
	a, err := New(params, escrow, eng, sale, payment, nil)
	assert.Nil(t, err)

	// Before funding, everything reports not-started regardless of caller.
	in, err := encint.SealInput(eng.InputPublicKey(), alice, 1)
	assert.Nil(t, err)
	check.Equal(t, core.ErrNotStarted, a.Bid(400, alice, in), cmpopts.EquateErrors())
	check.Equal(t, core.ErrNotStarted, a.Stop(400, alice), cmpopts.EquateErrors())
	check.Equal(t, core.ErrNotStarted, a.CancelAuction(400, alice), cmpopts.EquateErrors())
	check.Equal(t, core.ErrNotStarted, a.ClaimUser(800, alice), cmpopts.EquateErrors())
	check.Equal(t, core.ErrNotStarted, a.ClaimSeller(800, alice), cmpopts.EquateErrors())

	// After expiry the time guard fires before the role guard.
	assert.Nil(t, sale.Mint(seller, 500))
	assert.Nil(t, a.Initialize(0, seller))
	check.Equal(t, core.ErrTooLate, a.Bid(700, alice, in), cmpopts.EquateErrors())
	check.Equal(t, core.ErrTooLate, a.Stop(700, alice), cmpopts.EquateErrors())
	check.Equal(t, core.ErrTooLate, a.CancelAuction(700, alice), cmpopts.EquateErrors())
}
