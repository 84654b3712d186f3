package positions

import (
	"errors"
	"testing"
)

func TestRecomputeBasisFromTradeTape(t *testing.T) {
	pos := Position{ContractID: 1, Type: Long, Size: 5}
	trades := []Trade{
		{Side: Bid, FilledSize: 3, Premium: 300000, Fee: 45, Rebate: 0},
		{Side: Bid, FilledSize: 2, Premium: 200000, Fee: 30, Rebate: 0},
	}

	got, err := RecomputeBasis(pos, trades)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.BasisKnown {
		t.Fatalf("expected basis known")
	}
	if got.Basis != 500075 {
		t.Fatalf("expected basis 500075, got %d", got.Basis)
	}
}

func TestRecomputeBasisSizeMismatchClearsBasis(t *testing.T) {
	pos := Position{ContractID: 1, Type: Long, Size: 9}
	trades := []Trade{{Side: Bid, FilledSize: 3, Premium: 1, Fee: 1}}

	got, err := RecomputeBasis(pos, trades)
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
	if got.BasisKnown {
		t.Fatalf("expected basis not known after mismatch")
	}
}

func TestRecomputeBasisSignInvariantViolation(t *testing.T) {
	pos := Position{ContractID: 1, Type: Short, Size: -5}
	trades := []Trade{{Side: Bid, FilledSize: 5, Premium: 0, Fee: 0}}

	_, err := RecomputeBasis(pos, trades)
	if !errors.Is(err, ErrSignInvariantViolated) {
		t.Fatalf("expected sign invariant violation, got %v", err)
	}
}

func TestRecomputeBasisAskSide(t *testing.T) {
	pos := Position{ContractID: 1, Type: Short, Size: -4}
	trades := []Trade{{Side: Ask, FilledSize: 4, Premium: 1000, Fee: 20, Rebate: 5}}

	got, err := RecomputeBasis(pos, trades)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// fee - rebate - premium = 20 - 5 - 1000 = -985
	if got.Basis != -985 {
		t.Fatalf("expected basis -985, got %d", got.Basis)
	}
}
