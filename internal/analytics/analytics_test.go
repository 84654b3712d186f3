package analytics

import (
	"testing"
	"time"

	"github.com/tildenfx/marketstate/internal/contracts"
)

func TestFeeTable(t *testing.T) {
	if got := Fee(1000, 2); got != 4 {
		t.Fatalf("fee(1000,2) = %d, want 4", got)
	}
	if got := Fee(100000, 3); got != 45 {
		t.Fatalf("fee(100000,3) = %d, want 45", got)
	}
}

func ptr(v int64) *int64 { return &v }

func TestCostToCloseRequiresBookTop(t *testing.T) {
	_, err := CostToClose(5, false, 0, nil, ptr(100))
	if err != ErrBookTopUnavailable {
		t.Fatalf("expected ErrBookTopUnavailable, got %v", err)
	}
}

func TestCostToCloseComputesNetWhenBasisKnown(t *testing.T) {
	res, err := CostToClose(5, true, 250000, ptr(100000), ptr(101000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Net == nil {
		t.Fatalf("expected net to be computed")
	}
}

func TestIsQualifiedCoveredCallRejectsPut(t *testing.T) {
	ct := contracts.Contract{IsCall: false, DateExpires: time.Now().Add(60 * 24 * time.Hour)}
	ok, err := IsQualifiedCoveredCall(ct, time.Now(), []int64{100, 200, 300}, 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected puts to never qualify")
	}
}

func TestIsQualifiedCoveredCallShortTenorRejected(t *testing.T) {
	ct := contracts.Contract{IsCall: true, DateExpires: time.Now().Add(10 * 24 * time.Hour)}
	ok, _ := IsQualifiedCoveredCall(ct, time.Now(), []int64{100, 200, 300}, 150)
	if ok {
		t.Fatalf("expected short-tenor call to be rejected")
	}
}

func TestIsQualifiedCoveredCallStrikeFarEnoughOTM(t *testing.T) {
	now := time.Now()
	ladder := []int64{100, 200, 300, 400, 500}
	ct := contracts.Contract{IsCall: true, DateExpires: now.Add(60 * 24 * time.Hour), StrikePrice: 500}
	ok, err := IsQualifiedCoveredCall(ct, now, ladder, 250)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected strike 500 to qualify against fmv 250 on ladder %v", ladder)
	}
}

func TestIsQualifiedCoveredCallOffByOneDiscriminates(t *testing.T) {
	// days in (30, 90] => strikesPast = 1, so the true threshold strike
	// is the first rung at or below fmv (200), not one rung further out
	// (100). A strike of 150 sits between those two candidate
	// thresholds: the correct walk rejects it (150 < 200) while the
	// off-by-one walk used to accept it (150 >= 100).
	now := time.Now()
	ladder := []int64{100, 200, 300, 400, 500}
	ct := contracts.Contract{IsCall: true, DateExpires: now.Add(60 * 24 * time.Hour), StrikePrice: 150}
	ok, err := IsQualifiedCoveredCall(ct, now, ladder, 250)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected strike 150 to be rejected against threshold strike 200 (fmv 250, ladder %v)", ladder)
	}
}

func TestIsQualifiedCoveredCallDegenerateWhenNoStrikeAtOrBelowFMV(t *testing.T) {
	now := time.Now()
	ladder := []int64{100, 200, 300}
	ct := contracts.Contract{IsCall: true, DateExpires: now.Add(60 * 24 * time.Hour), StrikePrice: 150}
	ok, err := IsQualifiedCoveredCall(ct, now, ladder, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected degenerate case (no strike <= fmv) to fall back to the lowest ladder strike and qualify broadly")
	}
}

func TestNetToCloseSumsBounds(t *testing.T) {
	views := []PositionView{
		{ContractID: 1, Size: 5, Bid: ptr(100), Ask: ptr(110)},
		{ContractID: 2, Size: -3, Bid: nil, Ask: nil}, // missing book top, skipped
	}
	low, high := NetToClose(nil, views)
	if low == 0 && high == 0 {
		t.Fatalf("expected nonzero bounds from the one valid position")
	}
}
