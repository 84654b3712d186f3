package ledger

import (
	"testing"

	"github.com/tildenfx/marketstate/internal/actions"
)

func TestApplyCollateralUpdateMergesFields(t *testing.T) {
	l := New(nil)
	l.ApplyCollateralUpdate(actions.CollateralUpdatePayload{
		AvailableBalances:      map[string]int64{"BTC": 100},
		PositionLockedBalances: map[string]int64{"BTC": 25},
	})
	acct := l.Account("BTC")
	if acct.Get("available_balance") != 100 || acct.Get("position_locked_amount") != 25 {
		t.Fatalf("unexpected account: %+v", acct)
	}
}

func TestApplyTransactionDebitCreditSymmetry(t *testing.T) {
	l := New(nil)
	l.ApplyTransaction(Transaction{Asset: "USD", State: "executed", Amount: 500, DebitField: "available_balance", CreditField: "trading_balance"})
	acct := l.Account("USD")
	if acct.Get("available_balance") != -500 {
		t.Fatalf("expected debit of -500, got %d", acct.Get("available_balance"))
	}
	if acct.Get("trading_balance") != 500 {
		t.Fatalf("expected credit of 500, got %d", acct.Get("trading_balance"))
	}
}

func TestApplyTransactionSkipsNonExecuted(t *testing.T) {
	l := New(nil)
	l.ApplyTransaction(Transaction{Asset: "USD", State: "pending", Amount: 500, DebitField: "available_balance", CreditField: "trading_balance"})
	acct := l.Account("USD")
	if acct.Get("available_balance") != 0 || acct.Get("trading_balance") != 0 {
		t.Fatalf("expected no-op for non-executed transaction, got %+v", acct)
	}
}

func TestApplyTransactionAutoVivifiesUnknownField(t *testing.T) {
	l := New(nil)
	l.ApplyTransaction(Transaction{Asset: "ETH", State: "executed", Amount: 10, DebitField: "brand_new_field", CreditField: "another_new_field"})
	acct := l.Account("ETH")
	if acct.Get("brand_new_field") != -10 || acct.Get("another_new_field") != 10 {
		t.Fatalf("unexpected account: %+v", acct)
	}
}
