package escrow

import (
	"errors"
	"math/big"
	"time"

	"bountyvault/core/events"
)

var errNilState = errors.New("escrow engine: state not configured")
var errNilLedger = errors.New("escrow engine: token ledger not configured")

// EngineState is the slice of persistent state the engine mutates. All
// operations of one invocation run against a single implementation instance
// whose writes commit or discard as a unit.
type EngineState interface {
	ConfigGet() (*Config, bool, error)
	ConfigPut(*Config) error
	EscrowGet(bountyID uint64) (*Escrow, bool, error)
	EscrowPut(*Escrow) error
	EscrowHas(bountyID uint64) (bool, error)
	ProgramGet(programID string) (*Program, bool, error)
	ProgramPut(*Program) error
	GuardActive() (bool, error)
	GuardSet() error
	GuardClear() error
}

// TokenLedger is the trusted asset-transfer collaborator. It moves value
// between accounts and reports balances; it is the only call-out point where
// control can leave the engine mid-invocation.
type TokenLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(owner [20]byte) (*big.Int, error)
}

// Engine wires the escrow business logic with external state, the token
// ledger and an event emitter. One engine instance serves one invocation's
// transaction; construction is cheap.
type Engine struct {
	state   EngineState
	ledger  TokenLedger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine(state EngineState, ledger TokenLedger) *Engine {
	return &Engine{
		state:   state,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ensureWired() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// acquireGuard raises the execution guard, failing fatally when it is already
// set. The returned release function lowers the guard and is called only on
// the normal exit path; on error paths the enclosing transaction discards the
// guard write together with everything else, so the guard can never leak into
// a later invocation.
func (e *Engine) acquireGuard() (func() error, error) {
	active, err := e.state.GuardActive()
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrReentrancy
	}
	if err := e.state.GuardSet(); err != nil {
		return nil, err
	}
	return e.state.GuardClear, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Init stores the admin and token configuration. The first successful caller
// wins; every later call fails without side effects.
func (e *Engine) Init(admin [20]byte, token string) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	if _, ok, err := e.state.ConfigGet(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	cfg := &Config{Admin: admin, Token: normalized}
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewInitializedEvent(cfg, e.now()))
	return nil
}

// LockFunds transfers the amount from the depositor into custody and creates
// the Locked record. Transfer and record creation commit as one unit.
func (e *Engine) LockFunds(caller, depositor [20]byte, bountyID uint64, amount *big.Int, deadline int64) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	if caller != depositor {
		return ErrUnauthorized
	}
	release, err := e.acquireGuard()
	if err != nil {
		return err
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	now := e.now()
	if deadline <= now {
		return ErrInvalidDeadline
	}
	if exists, err := e.state.EscrowHas(bountyID); err != nil {
		return err
	} else if exists {
		return ErrBountyExists
	}
	vault := VaultAddress(cfg.Token)
	if err := e.ledger.Transfer(depositor, vault, amount); err != nil {
		return err
	}
	esc := &Escrow{
		BountyID:  bountyID,
		Depositor: depositor,
		Amount:    cloneBigInt(amount),
		Status:    StatusLocked,
		Deadline:  deadline,
		CreatedAt: now,
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewLockedEvent(esc))
	return release()
}

// ReleaseFunds pays the escrowed amount out to the beneficiary. The terminal
// status is persisted before the transfer call is issued, so even a
// collaborator that re-enters the engine observes a non-Locked record.
func (e *Engine) ReleaseFunds(caller [20]byte, bountyID uint64, beneficiary [20]byte) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	release, err := e.acquireGuard()
	if err != nil {
		return err
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if caller != cfg.Admin {
		return ErrUnauthorized
	}
	esc, ok, err := e.state.EscrowGet(bountyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBountyNotFound
	}
	if esc.Status != StatusLocked {
		return ErrFundsNotLocked
	}
	esc.Status = StatusReleased
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	vault := VaultAddress(cfg.Token)
	if err := e.ledger.Transfer(vault, beneficiary, esc.Amount); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(esc, beneficiary, e.now()))
	return release()
}

// Refund returns the escrowed amount to the depositor once the deadline has
// been reached. Anyone may trigger it; the record itself pins the recipient.
func (e *Engine) Refund(bountyID uint64) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	release, err := e.acquireGuard()
	if err != nil {
		return err
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	esc, ok, err := e.state.EscrowGet(bountyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBountyNotFound
	}
	if esc.Status != StatusLocked {
		return ErrFundsNotLocked
	}
	if e.now() < esc.Deadline {
		return ErrDeadlineNotPassed
	}
	esc.Status = StatusRefunded
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	vault := VaultAddress(cfg.Token)
	if err := e.ledger.Transfer(vault, esc.Depositor, esc.Amount); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(esc, e.now()))
	return release()
}

// EscrowInfo returns the record for a bounty. Resolved records remain
// queryable indefinitely.
func (e *Engine) EscrowInfo(bountyID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(bountyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBountyNotFound
	}
	return esc.Clone(), nil
}

// Balance reports the custody balance held by the escrow vault.
func (e *Engine) Balance() (*big.Int, error) {
	if err := e.ensureWired(); err != nil {
		return nil, err
	}
	cfg, ok, err := e.state.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return e.ledger.BalanceOf(VaultAddress(cfg.Token))
}
