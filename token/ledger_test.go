package token

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/dutchauction/core"
)

func TestLedger_MintAndTransfer(t *testing.T) {
	l := NewLedger()
	check.Nil(t, l.Mint("alice", 100))

	check.Nil(t, l.Transfer("alice", "bob", 40))
	check.Equal(t, uint64(60), l.BalanceOf("alice"))
	check.Equal(t, uint64(40), l.BalanceOf("bob"))
}

func TestLedger_InsufficientBalance(t *testing.T) {
	l := NewLedger()
	check.Nil(t, l.Mint("alice", 10))

	err := l.Transfer("alice", "bob", 11)
	check.Equal(t, ErrInsufficientBalance, err, cmpopts.EquateErrors())

	// Nothing moved.
	check.Equal(t, uint64(10), l.BalanceOf("alice"))
	check.Equal(t, uint64(0), l.BalanceOf("bob"))
}

func TestLedger_ZeroAmountTransfer(t *testing.T) {
	l := NewLedger()
	check.Nil(t, l.Transfer("alice", "bob", 0))
	check.Equal(t, uint64(0), l.BalanceOf("bob"))
}

func TestLedger_SelfTransfer(t *testing.T) {
	l := NewLedger()
	check.Nil(t, l.Mint("alice", 7))
	check.Nil(t, l.Transfer("alice", "alice", 5))
	check.Equal(t, uint64(7), l.BalanceOf("alice"))
}

func TestLedger_InvalidAddress(t *testing.T) {
	l := NewLedger()
	check.Equal(t, ErrInvalidAddress, l.Mint(core.Zero, 1), cmpopts.EquateErrors())
	check.Equal(t, ErrInvalidAddress, l.Transfer(core.Zero, "bob", 1), cmpopts.EquateErrors())
	check.Equal(t, ErrInvalidAddress, l.Transfer("alice", core.Zero, 1), cmpopts.EquateErrors())
}

func TestLedger_MintOverflow(t *testing.T) {
	l := NewLedger()
	check.Nil(t, l.Mint("alice", math.MaxUint64))
	check.Equal(t, core.ErrAmountOverflow, l.Mint("alice", 1), cmpopts.EquateErrors())
}
