package positions

import (
	"context"
	"log"
	"sync"

	"github.com/tildenfx/marketstate/internal/actions"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/lifecycle"
)

// Lifecycle states for a tracked position (spec §4.9).
const (
	StateUnknown              lifecycle.State = "unknown"
	StateTrackedWithoutBasis  lifecycle.State = "tracked-without-basis"
	StateTrackedWithBasis     lifecycle.State = "tracked-with-basis"
)

func newLifecycleTable() *lifecycle.Table {
	return lifecycle.NewTable([]lifecycle.Transition{
		{From: StateUnknown, To: StateTrackedWithoutBasis, Reason: "first report"},
		{From: StateUnknown, To: StateTrackedWithoutBasis, Reason: "seeded from rest list-positions"},
		{From: StateTrackedWithoutBasis, To: StateTrackedWithBasis, Reason: "basis computed"},
		{From: StateTrackedWithBasis, To: StateTrackedWithoutBasis, Reason: "size disagreement"},
		{From: StateTrackedWithoutBasis, To: StateTrackedWithoutBasis, Reason: "basis recompute inconclusive"},
	})
}

// Manager owns every tracked position and the deferred basis-refresh
// queue.
type Manager struct {
	mu sync.Mutex

	logger    *log.Logger
	lifecycle *lifecycle.Table

	byContract map[contracts.ID]Position
	states     map[contracts.ID]lifecycle.State

	pendingBasis   map[contracts.ID]bool
	pendingOrder   []contracts.ID
	fullRelistNeeded bool
}

// New builds an empty Manager.
func New(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		logger:       logger,
		lifecycle:    newLifecycleTable(),
		byContract:   make(map[contracts.ID]Position),
		states:       make(map[contracts.ID]lifecycle.State),
		pendingBasis: make(map[contracts.ID]bool),
	}
}

// Get returns the tracked position for a contract, if any.
func (m *Manager) Get(id contracts.ID) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byContract[id]
	return p, ok
}

// Clear drops all tracked positions and pending work, used on startup
// load and on a run_id restart.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byContract = make(map[contracts.ID]Position)
	m.states = make(map[contracts.ID]lifecycle.State)
	m.pendingBasis = make(map[contracts.ID]bool)
	m.pendingOrder = nil
	m.fullRelistNeeded = false
}

// Seed registers a position loaded directly from a REST list-positions
// reply (spec §4.7 startup path), without going through the
// open_positions_update disagreement logic.
func (m *Manager) Seed(pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byContract[pos.ContractID] = pos
	m.transitionLocked(pos.ContractID, StateTrackedWithoutBasis, "seeded from rest list-positions")
	m.enqueueBasisLocked(pos.ContractID)
}

func (m *Manager) transitionLocked(id contracts.ID, to lifecycle.State, reason string) {
	from, ok := m.states[id]
	if !ok {
		from = StateUnknown
	}
	if from == to {
		m.states[id] = to
		return
	}
	if err := m.lifecycle.Check(from, to, reason); err != nil {
		m.logger.Printf("warn: position lifecycle: contract=%d: %v", id, err)
	}
	m.states[id] = to
}

func (m *Manager) enqueueBasisLocked(id contracts.ID) {
	if m.pendingBasis[id] {
		return
	}
	m.pendingBasis[id] = true
	m.pendingOrder = append(m.pendingOrder, id)
}

// ApplyOpenPositionsUpdate implements spec §4.4's open_positions_update
// row: for each entry, a size disagreement enqueues a basis refresh, and
// an entry for an unknown contract triggers a full position re-list.
func (m *Manager) ApplyOpenPositionsUpdate(_ context.Context, updates []actions.PositionUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range updates {
		pos, tracked := m.byContract[u.ContractID]
		if !tracked {
			m.fullRelistNeeded = true
			m.logger.Printf("debug: open_positions_update referenced untracked contract %d, scheduling full re-list", u.ContractID)
			continue
		}

		pos.AssignedSize = u.AssignedSize
		pos.ExercisedSize = u.ExercisedSize
		if u.ID != 0 {
			pos.ServerID = u.ID
		}

		if u.Size != pos.Size {
			pos.Size = u.Size
			pos.Basis = 0
			pos.BasisKnown = false
			m.byContract[u.ContractID] = pos
			m.transitionLocked(u.ContractID, StateTrackedWithoutBasis, "size disagreement")
			m.enqueueBasisLocked(u.ContractID)
			continue
		}

		m.byContract[u.ContractID] = pos
	}
}

// ScheduleFullRelist flags that the next maintenance pass should re-list
// every position from REST, e.g. after a sign-invariant violation during
// basis recomputation (spec §4.5).
func (m *Manager) ScheduleFullRelist() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fullRelistNeeded = true
}

// NeedsFullRelist reports whether a full re-list has been flagged, either
// by an update that referenced a contract this manager has never seen or
// by ScheduleFullRelist, and clears the flag.
func (m *Manager) NeedsFullRelist() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	need := m.fullRelistNeeded
	m.fullRelistNeeded = false
	return need
}

// DrainBasisPending pops up to n contract ids off the deferred
// basis-refresh queue (spec §4.5's "N per tick", default 2).
func (m *Manager) DrainBasisPending(n int) []contracts.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.pendingOrder) {
		n = len(m.pendingOrder)
	}
	out := make([]contracts.ID, n)
	copy(out, m.pendingOrder[:n])
	m.pendingOrder = m.pendingOrder[n:]
	for _, id := range out {
		delete(m.pendingBasis, id)
	}
	return out
}

// PendingBasisCount reports the current deferred-queue depth.
func (m *Manager) PendingBasisCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingOrder)
}

// CommitBasis stores the result of a RecomputeBasis call for a contract
// already tracked. If the recompute determined the basis (BasisKnown),
// the lifecycle state advances to tracked-with-basis; otherwise it is
// re-queued for another attempt after the next heartbeat.
func (m *Manager) CommitBasis(id contracts.ID, pos Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byContract[id] = pos
	if pos.BasisKnown {
		m.transitionLocked(id, StateTrackedWithBasis, "basis computed")
		return
	}
	m.transitionLocked(id, StateTrackedWithoutBasis, "basis recompute inconclusive")
	m.enqueueBasisLocked(id)
}

// ExpireContract zeroes a position's size into ExpiredSize when its
// contract expires (spec §3).
func (m *Manager) ExpireContract(id contracts.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.byContract[id]
	if !ok {
		return
	}
	pos.ExpiredSize = pos.Size
	pos.Size = 0
	m.byContract[id] = pos
}

// All returns a snapshot copy of every tracked position.
func (m *Manager) All() map[contracts.ID]Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[contracts.ID]Position, len(m.byContract))
	for k, v := range m.byContract {
		out[k] = v
	}
	return out
}
