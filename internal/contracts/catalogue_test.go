package contracts

import (
	"context"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05-07:00", s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

func TestAddContractIdempotentByID(t *testing.T) {
	c := New(nil, nil)
	exp := mustTime(t, "2099-01-01 00:00:00+00:00")
	ct := Contract{ID: 1, Label: "BTC 2024-01-05 Call $50,000", DerivativeType: Option, UnderlyingAsset: "BTC", DateExpires: exp, IsCall: true, StrikePrice: 5000000}
	c.AddContract(ct)
	c.AddContract(ct) // idempotent

	got, ok := c.Get(1)
	if !ok {
		t.Fatalf("expected contract to be present")
	}
	if got.Label != ct.Label {
		t.Fatalf("label mismatch: %q", got.Label)
	}
	if len(c.ExpiryDates()) != 1 {
		t.Fatalf("expected exactly one expiry date, got %d", len(c.ExpiryDates()))
	}
}

func TestPutCallLinking(t *testing.T) {
	c := New(nil, nil)
	exp := mustTime(t, "2099-01-01 00:00:00+00:00")
	put := Contract{ID: 1, Label: "BTC 2024-01-05 00:00:00 Put $50,000", DerivativeType: Option, UnderlyingAsset: "BTC", DateExpires: exp, IsCall: false, StrikePrice: 5000000}
	call := Contract{ID: 2, Label: "BTC 2024-01-05 00:00:00 Call $50,000", DerivativeType: Option, UnderlyingAsset: "BTC", DateExpires: exp, IsCall: true, StrikePrice: 5000000}

	c.AddContract(put)
	if _, ok := c.PutCallSibling(1); ok {
		t.Fatalf("expected no sibling before call is known")
	}
	c.AddContract(call)

	sib, ok := c.PutCallSibling(1)
	if !ok || sib != 2 {
		t.Fatalf("expected put 1 linked to call 2, got %v %v", sib, ok)
	}
	sib, ok = c.PutCallSibling(2)
	if !ok || sib != 1 {
		t.Fatalf("expected call 2 linked to put 1, got %v %v", sib, ok)
	}
}

func TestStrikeLadderSortedAscending(t *testing.T) {
	c := New(nil, nil)
	exp := mustTime(t, "2099-01-01 00:00:00+00:00")
	for _, strike := range []int64{5000000, 1000000, 3000000} {
		c.AddContract(Contract{ID: ID(strike), DerivativeType: Option, UnderlyingAsset: "BTC", DateExpires: exp, StrikePrice: strike})
	}
	ladder := c.Strikes("BTC", exp)
	want := []int64{1000000, 3000000, 5000000}
	if len(ladder) != len(want) {
		t.Fatalf("got %v want %v", ladder, want)
	}
	for i := range want {
		if ladder[i] != want[i] {
			t.Fatalf("got %v want %v", ladder, want)
		}
	}
}

func TestNextDaySwapSupersession(t *testing.T) {
	c := New(nil, nil)
	older := mustTime(t, "2030-01-01 00:00:00+00:00")
	newer := mustTime(t, "2030-01-02 00:00:00+00:00")
	c.AddContract(Contract{ID: 1, DerivativeType: DayAheadSwap, UnderlyingAsset: "BTC", DateExpires: older, IsNextDay: true})
	c.AddContract(Contract{ID: 2, DerivativeType: DayAheadSwap, UnderlyingAsset: "BTC", DateExpires: newer, IsNextDay: true})

	id, ok := c.NextDaySwap("BTC")
	if !ok || id != 2 {
		t.Fatalf("expected contract 2 to supersede, got %v %v", id, ok)
	}
}

func TestIsExpired(t *testing.T) {
	c := New(nil, nil)
	now := time.Now().UTC()
	c.AddContract(Contract{ID: 1, DateExpires: now.Add(5 * time.Second)})
	c.AddContract(Contract{ID: 2, DateExpires: now.Add(time.Hour)})

	if !c.IsExpired(1, now) {
		t.Fatalf("contract expiring within 10s should be expired")
	}
	if c.IsExpired(2, now) {
		t.Fatalf("contract expiring in an hour should not be expired")
	}

	c.RemoveContract(2)
	if !c.IsExpired(2, now) {
		t.Fatalf("explicitly removed contract should be expired regardless of date")
	}
}

type stubFetcher struct {
	contract Contract
	err      error
}

func (s stubFetcher) RetrieveContract(_ context.Context, id ID) (Contract, error) {
	if s.err != nil {
		return Contract{}, s.err
	}
	return s.contract, nil
}

func TestRetrieveContractFetchesOnMiss(t *testing.T) {
	c := New(nil, stubFetcher{contract: Contract{ID: 42, Label: "fetched"}})
	ct, err := c.RetrieveContract(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.Label != "fetched" {
		t.Fatalf("unexpected contract: %+v", ct)
	}
	// now cached
	if _, ok := c.Get(42); !ok {
		t.Fatalf("expected contract to be cached after retrieve")
	}
}

func TestRetrieveContractMismatchedIDFails(t *testing.T) {
	c := New(nil, stubFetcher{contract: Contract{ID: 99}})
	_, err := c.RetrieveContract(context.Background(), 42)
	if err == nil {
		t.Fatalf("expected error on id mismatch")
	}
}

func TestRetrieveContractNoFetcher(t *testing.T) {
	c := New(nil, nil)
	_, err := c.RetrieveContract(context.Background(), 1)
	if err == nil {
		t.Fatalf("expected error with no fetcher configured")
	}
}

func TestToContractLabelFormats(t *testing.T) {
	exp := mustTime(t, "2024-01-05 00:00:00+00:00")
	got := ToContractLabel("BTC", exp, Option, true, 5000000)
	want := "BTC 2024-01-05 Call $50,000"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	got = ToContractLabel("CBTC", exp, Future, false, 0)
	want = "2024-01-05 Future BTC Mini"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
