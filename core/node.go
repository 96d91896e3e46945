package core

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"bountyvault/core/events"
	"bountyvault/native/bank"
	"bountyvault/native/escrow"
	"bountyvault/observability/metrics"
	"bountyvault/state"
)

var genesisAppliedKey = []byte("genesis/applied")

// GenesisAccount seeds an initial token balance at startup.
type GenesisAccount struct {
	Address [20]byte
	Balance *big.Int
}

// Node executes escrow invocations one at a time, each inside its own state
// transaction. A failed invocation discards every write it made, the
// execution guard included, so no partial record or stale guard ever reaches
// committed state.
type Node struct {
	mu      sync.Mutex
	mgr     *state.Manager
	emitter events.Emitter
	nowFn   func() int64
	metrics *metrics.EscrowMetrics
}

// NewNode creates a node over the supplied state manager.
func NewNode(mgr *state.Manager) *Node {
	return &Node{
		mgr:     mgr,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		metrics: metrics.Escrow(),
	}
}

// SetEmitter configures the notification sink. Passing nil resets it to a
// no-op implementation.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetNowFunc overrides the clock oracle. Primarily intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
	} else {
		n.nowFn = now
	}
	n.mgr.SetNowFunc(n.nowFn)
}

// run executes one invocation inside a fresh transaction, committing on
// success and discarding everything on failure.
func (n *Node) run(operation string, fn func(*escrow.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	txn := n.mgr.Begin()
	st := escrow.NewState(txn)
	eng := escrow.NewEngine(st, bank.NewLedger(st))
	eng.SetEmitter(n.emitter)
	eng.SetNowFunc(n.nowFn)

	if err := fn(eng); err != nil {
		txn.Discard()
		if errors.Is(err, escrow.ErrReentrancy) {
			n.metrics.ObserveReentrancyAbort()
		}
		n.metrics.ObserveOperation(operation, "error")
		return err
	}
	if err := txn.Commit(); err != nil {
		n.metrics.ObserveOperation(operation, "error")
		return err
	}
	n.metrics.ObserveOperation(operation, "ok")
	return nil
}

// SeedGenesis mints the configured startup balances. A marker key makes the
// seeding a one-shot: restarts are no-ops.
func (n *Node) SeedGenesis(accounts []GenesisAccount) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	txn := n.mgr.Begin()
	applied, err := txn.Has(genesisAppliedKey)
	if err != nil {
		txn.Discard()
		return err
	}
	if applied {
		txn.Discard()
		return nil
	}
	ledger := bank.NewLedger(escrow.NewState(txn))
	for _, acc := range accounts {
		if acc.Balance == nil || acc.Balance.Sign() <= 0 {
			continue
		}
		if err := ledger.Mint(acc.Address, acc.Balance); err != nil {
			txn.Discard()
			return err
		}
	}
	if err := txn.Put(genesisAppliedKey, []byte{1}); err != nil {
		txn.Discard()
		return err
	}
	return txn.Commit()
}

// Init writes the one-time admin/token configuration.
func (n *Node) Init(admin [20]byte, token string) error {
	return n.run("escrow_init", func(eng *escrow.Engine) error {
		return eng.Init(admin, token)
	})
}

// LockFunds locks a deposit for a bounty.
func (n *Node) LockFunds(caller, depositor [20]byte, bountyID uint64, amount *big.Int, deadline int64) error {
	return n.run("escrow_lock", func(eng *escrow.Engine) error {
		return eng.LockFunds(caller, depositor, bountyID, amount, deadline)
	})
}

// ReleaseFunds pays out a locked bounty to the beneficiary.
func (n *Node) ReleaseFunds(caller [20]byte, bountyID uint64, beneficiary [20]byte) error {
	return n.run("escrow_release", func(eng *escrow.Engine) error {
		return eng.ReleaseFunds(caller, bountyID, beneficiary)
	})
}

// Refund returns a locked bounty to its depositor after the deadline.
func (n *Node) Refund(bountyID uint64) error {
	return n.run("escrow_refund", func(eng *escrow.Engine) error {
		return eng.Refund(bountyID)
	})
}

// EscrowInfo returns the record for a bounty id.
func (n *Node) EscrowInfo(bountyID uint64) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := n.run("escrow_get", func(eng *escrow.Engine) error {
		var err error
		out, err = eng.EscrowInfo(bountyID)
		return err
	})
	return out, err
}

// Balance reports the custody balance of the escrow vault.
func (n *Node) Balance() (*big.Int, error) {
	var out *big.Int
	err := n.run("escrow_balance", func(eng *escrow.Engine) error {
		var err error
		out, err = eng.Balance()
		return err
	})
	if err == nil && out != nil {
		f, _ := new(big.Float).SetInt(out).Float64()
		n.metrics.SetCustodyBalance(f)
	}
	return out, err
}

// InitializeProgram registers a program aggregate.
func (n *Node) InitializeProgram(programID string, admin [20]byte, token string) error {
	return n.run("program_init", func(eng *escrow.Engine) error {
		return eng.InitializeProgram(programID, admin, token)
	})
}

// LockProgramFunds accounts additional funds into a program balance.
func (n *Node) LockProgramFunds(programID string, amount *big.Int) error {
	return n.run("program_lock", func(eng *escrow.Engine) error {
		return eng.LockProgramFunds(programID, amount)
	})
}

// SinglePayout disburses one amount from a program balance.
func (n *Node) SinglePayout(caller [20]byte, programID string, recipient [20]byte, amount *big.Int) error {
	return n.run("program_payout", func(eng *escrow.Engine) error {
		return eng.SinglePayout(caller, programID, recipient, amount)
	})
}

// BatchPayout disburses to every recipient or to none.
func (n *Node) BatchPayout(caller [20]byte, programID string, recipients [][20]byte, amounts []*big.Int) error {
	return n.run("program_batch_payout", func(eng *escrow.Engine) error {
		return eng.BatchPayout(caller, programID, recipients, amounts)
	})
}

// ProgramInfo returns the aggregate for a program id.
func (n *Node) ProgramInfo(programID string) (*escrow.Program, error) {
	var out *escrow.Program
	err := n.run("program_get", func(eng *escrow.Engine) error {
		var err error
		out, err = eng.ProgramInfo(programID)
		return err
	})
	return out, err
}

// ProgramRemainingBalance returns the undisbursed balance for a program id.
func (n *Node) ProgramRemainingBalance(programID string) (*big.Int, error) {
	var out *big.Int
	err := n.run("program_remaining", func(eng *escrow.Engine) error {
		var err error
		out, err = eng.ProgramRemainingBalance(programID)
		return err
	})
	return out, err
}
