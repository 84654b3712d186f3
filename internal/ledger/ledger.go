// Package ledger implements the account ledger (spec component C6):
// per-asset balance buckets projected from the collateral-update stream
// and the transaction tape, with dynamic, server-chosen field names.
package ledger

import (
	"log"
	"sync"

	"github.com/tildenfx/marketstate/internal/actions"
)

// Account holds one asset's balance fields. Field names are dynamic
// (server-chosen); an unknown field reads as zero until first written,
// matching spec §4.6's auto-vivification requirement.
type Account struct {
	Fields map[string]int64
}

func newAccount() *Account {
	return &Account{Fields: make(map[string]int64)}
}

// Get reads a field, returning 0 for a field never written.
func (a *Account) Get(field string) int64 {
	return a.Fields[field]
}

// Transaction is one entry from the transaction tape (spec §4.6). The
// debit/credit post-balance fields are optional server-reported
// snapshots used only to cross-check the ledger's own bookkeeping; a
// disagreement is logged, never authoritative.
type Transaction struct {
	Asset             string
	State             string
	Amount            int64
	DebitField        string
	CreditField       string
	DebitPostBalance  *int64
	CreditPostBalance *int64
}

const stateExecuted = "executed"

// Ledger owns every per-asset Account.
type Ledger struct {
	mu sync.Mutex

	logger   *log.Logger
	accounts map[string]*Account
}

// New builds an empty Ledger.
func New(logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{logger: logger, accounts: make(map[string]*Account)}
}

func (l *Ledger) accountLocked(asset string) *Account {
	a, ok := l.accounts[asset]
	if !ok {
		a = newAccount()
		l.accounts[asset] = a
	}
	return a
}

// Account returns a snapshot copy of one asset's fields.
func (l *Ledger) Account(asset string) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[asset]
	if !ok {
		return Account{Fields: map[string]int64{}}
	}
	out := make(map[string]int64, len(a.Fields))
	for k, v := range a.Fields {
		out[k] = v
	}
	return Account{Fields: out}
}

// Clear drops every tracked account, used on startup load and run_id
// restart.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[string]*Account)
}

// ApplyCollateralUpdate merges a collateral_balance_update frame's
// available/position-locked snapshots into the per-asset accounts
// (spec §4.4).
func (l *Ledger) ApplyCollateralUpdate(update actions.CollateralUpdatePayload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for asset, amount := range update.AvailableBalances {
		l.accountLocked(asset).Fields["available_balance"] = amount
	}
	for asset, amount := range update.PositionLockedBalances {
		l.accountLocked(asset).Fields["position_locked_amount"] = amount
	}
}

// ApplyTransaction applies one transaction-tape entry (spec §4.6). A
// non-executed transaction is logged and skipped. debit/credit field
// names are whatever the server named them; unknown names are created
// at zero on first write.
func (l *Ledger) ApplyTransaction(tx Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.State != stateExecuted {
		l.logger.Printf("debug: skipping non-executed transaction: asset=%s state=%s", tx.Asset, tx.State)
		return
	}

	acct := l.accountLocked(tx.Asset)
	debitPre := acct.Fields[tx.DebitField]
	creditPre := acct.Fields[tx.CreditField]

	acct.Fields[tx.DebitField] = debitPre - tx.Amount
	acct.Fields[tx.CreditField] = creditPre + tx.Amount

	if tx.DebitPostBalance != nil && acct.Fields[tx.DebitField] != *tx.DebitPostBalance {
		l.logger.Printf("warn: asset=%s field=%s computed post-balance %d disagrees with reported %d",
			tx.Asset, tx.DebitField, acct.Fields[tx.DebitField], *tx.DebitPostBalance)
	}
	if tx.CreditPostBalance != nil && acct.Fields[tx.CreditField] != *tx.CreditPostBalance {
		l.logger.Printf("warn: asset=%s field=%s computed post-balance %d disagrees with reported %d",
			tx.Asset, tx.CreditField, acct.Fields[tx.CreditField], *tx.CreditPostBalance)
	}
}
