package positions

import (
	"context"
	"testing"

	"github.com/tildenfx/marketstate/internal/actions"
	"github.com/tildenfx/marketstate/internal/contracts"
)

func TestApplyOpenPositionsUpdateSizeDisagreementEnqueuesBasis(t *testing.T) {
	m := New(nil)
	m.Seed(Position{ContractID: 1, Type: Long, Size: 5})
	m.DrainBasisPending(10) // clear the seed's own enqueue

	m.ApplyOpenPositionsUpdate(context.Background(), []actions.PositionUpdate{
		{ContractID: 1, Size: 8},
	})

	pos, ok := m.Get(1)
	if !ok || pos.Size != 8 {
		t.Fatalf("expected size updated to 8, got %+v ok=%v", pos, ok)
	}
	if pos.BasisKnown {
		t.Fatalf("expected basis cleared after disagreement")
	}
	if m.PendingBasisCount() != 1 {
		t.Fatalf("expected one pending basis refresh, got %d", m.PendingBasisCount())
	}
}

func TestApplyOpenPositionsUpdateUnknownContractFlagsRelist(t *testing.T) {
	m := New(nil)
	m.ApplyOpenPositionsUpdate(context.Background(), []actions.PositionUpdate{{ContractID: 99, Size: 1}})
	if !m.NeedsFullRelist() {
		t.Fatalf("expected full relist to be flagged")
	}
	if m.NeedsFullRelist() {
		t.Fatalf("expected flag to clear after read")
	}
}

func TestDrainBasisPendingBounded(t *testing.T) {
	m := New(nil)
	for i := 1; i <= 5; i++ {
		m.Seed(Position{ContractID: contracts.ID(i), Type: Long, Size: 1})
	}
	drained := m.DrainBasisPending(2)
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained, got %d", len(drained))
	}
	if m.PendingBasisCount() != 3 {
		t.Fatalf("expected 3 remaining, got %d", m.PendingBasisCount())
	}
}

func TestExpireContractZeroesSize(t *testing.T) {
	m := New(nil)
	m.Seed(Position{ContractID: 1, Type: Long, Size: 5})
	m.ExpireContract(1)
	pos, _ := m.Get(1)
	if pos.Size != 0 || pos.ExpiredSize != 5 {
		t.Fatalf("expected size zeroed into expired size, got %+v", pos)
	}
}
