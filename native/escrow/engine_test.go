package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockState struct {
	config   *Config
	escrows  map[uint64]*Escrow
	programs map[string]*Program
	guard    bool
}

func newMockState() *mockState {
	return &mockState{
		escrows:  make(map[uint64]*Escrow),
		programs: make(map[string]*Program),
	}
}

func (m *mockState) ConfigGet() (*Config, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	cfg := *m.config
	return &cfg, true, nil
}

func (m *mockState) ConfigPut(cfg *Config) error {
	c := *cfg
	m.config = &c
	return nil
}

func (m *mockState) EscrowGet(bountyID uint64) (*Escrow, bool, error) {
	esc, ok := m.escrows[bountyID]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) EscrowPut(esc *Escrow) error {
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	m.escrows[sanitized.BountyID] = sanitized
	return nil
}

func (m *mockState) EscrowHas(bountyID uint64) (bool, error) {
	_, ok := m.escrows[bountyID]
	return ok, nil
}

func (m *mockState) ProgramGet(programID string) (*Program, bool, error) {
	prog, ok := m.programs[programID]
	if !ok {
		return nil, false, nil
	}
	return prog.Clone(), true, nil
}

func (m *mockState) ProgramPut(prog *Program) error {
	sanitized, err := SanitizeProgram(prog)
	if err != nil {
		return err
	}
	m.programs[sanitized.ProgramID] = sanitized
	return nil
}

func (m *mockState) GuardActive() (bool, error) { return m.guard, nil }
func (m *mockState) GuardSet() error            { m.guard = true; return nil }
func (m *mockState) GuardClear() error          { m.guard = false; return nil }

type mockLedger struct {
	balances   map[[20]byte]*big.Int
	onTransfer func(from, to [20]byte, amount *big.Int) error
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[[20]byte]*big.Int)}
}

func (l *mockLedger) credit(addr [20]byte, amount int64) {
	l.balances[addr] = new(big.Int).Add(l.balance(addr), big.NewInt(amount))
}

func (l *mockLedger) balance(addr [20]byte) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (l *mockLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l.onTransfer != nil {
		if err := l.onTransfer(from, to, amount); err != nil {
			return err
		}
	}
	if l.balance(from).Cmp(amount) < 0 {
		return errors.New("mock ledger: insufficient balance")
	}
	l.balances[from] = new(big.Int).Sub(l.balance(from), amount)
	l.balances[to] = new(big.Int).Add(l.balance(to), amount)
	return nil
}

func (l *mockLedger) BalanceOf(owner [20]byte) (*big.Int, error) {
	return new(big.Int).Set(l.balance(owner)), nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

// discardInvocation mirrors what the transaction layer does for a failed
// invocation: every write, the guard flag included, is thrown away.
func (m *mockState) discardInvocation() { m.guard = false }

func newTestEngine(t *testing.T) (*Engine, *mockState, *mockLedger) {
	t.Helper()
	st := newMockState()
	ledger := newMockLedger()
	eng := NewEngine(st, ledger)
	eng.SetNowFunc(func() int64 { return 1_000 })
	return eng, st, ledger
}

func initEngine(t *testing.T, eng *Engine, admin [20]byte) {
	t.Helper()
	require.NoError(t, eng.Init(admin, "USDC"))
}

func TestInitOnce(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	admin := newTestAddress(0xA1)

	require.NoError(t, eng.Init(admin, "usdc"))
	require.Equal(t, "USDC", st.config.Token)
	require.Equal(t, admin, st.config.Admin)

	err := eng.Init(newTestAddress(0xA2), "USDC")
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Equal(t, admin, st.config.Admin)
}

func TestLockFundsCreatesRecord(t *testing.T) {
	eng, _, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, admin)
	ledger.credit(depositor, 5_000)

	require.NoError(t, eng.LockFunds(depositor, depositor, 42, big.NewInt(1_000), 1_100))

	esc, err := eng.EscrowInfo(42)
	require.NoError(t, err)
	require.Equal(t, StatusLocked, esc.Status)
	require.Equal(t, depositor, esc.Depositor)
	require.Equal(t, big.NewInt(1_000), esc.Amount)
	require.Equal(t, int64(1_100), esc.Deadline)

	vault := VaultAddress("USDC")
	require.Equal(t, big.NewInt(1_000), ledger.balance(vault))
	require.Equal(t, big.NewInt(4_000), ledger.balance(depositor))
}

func TestLockFundsValidation(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	other := newTestAddress(0xD2)
	ledger.credit(depositor, 5_000)

	err := eng.LockFunds(other, depositor, 1, big.NewInt(100), 1_100)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = eng.LockFunds(depositor, depositor, 1, big.NewInt(100), 1_100)
	require.ErrorIs(t, err, ErrNotInitialized)
	st.discardInvocation()

	initEngine(t, eng, admin)

	err = eng.LockFunds(depositor, depositor, 1, big.NewInt(0), 1_100)
	require.ErrorIs(t, err, ErrInvalidAmount)
	st.discardInvocation()

	err = eng.LockFunds(depositor, depositor, 1, nil, 1_100)
	require.ErrorIs(t, err, ErrInvalidAmount)
	st.discardInvocation()

	err = eng.LockFunds(depositor, depositor, 1, big.NewInt(100), 1_000)
	require.ErrorIs(t, err, ErrInvalidDeadline)
	st.discardInvocation()
}

func TestLockFundsDuplicateBounty(t *testing.T) {
	eng, _, ledger := newTestEngine(t)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, newTestAddress(0xA1))
	ledger.credit(depositor, 5_000)

	require.NoError(t, eng.LockFunds(depositor, depositor, 7, big.NewInt(500), 1_100))
	err := eng.LockFunds(depositor, depositor, 7, big.NewInt(900), 2_000)
	require.ErrorIs(t, err, ErrBountyExists)

	esc, err := eng.EscrowInfo(7)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), esc.Amount)
	require.Equal(t, int64(1_100), esc.Deadline)
}

func TestReleaseFunds(t *testing.T) {
	eng, _, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	beneficiary := newTestAddress(0xB1)
	initEngine(t, eng, admin)
	ledger.credit(depositor, 1_000)
	require.NoError(t, eng.LockFunds(depositor, depositor, 42, big.NewInt(1_000), 1_100))

	require.NoError(t, eng.ReleaseFunds(admin, 42, beneficiary))
	require.Equal(t, big.NewInt(1_000), ledger.balance(beneficiary))

	esc, err := eng.EscrowInfo(42)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, esc.Status)

	err = eng.ReleaseFunds(admin, 42, beneficiary)
	require.ErrorIs(t, err, ErrFundsNotLocked)
}

func TestReleaseFundsUnauthorized(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, admin)
	ledger.credit(depositor, 1_000)
	require.NoError(t, eng.LockFunds(depositor, depositor, 42, big.NewInt(1_000), 1_100))

	err := eng.ReleaseFunds(depositor, 42, depositor)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, StatusLocked, st.escrows[42].Status)
}

func TestReleaseFundsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	admin := newTestAddress(0xA1)
	initEngine(t, eng, admin)

	err := eng.ReleaseFunds(admin, 99, newTestAddress(0xB1))
	require.ErrorIs(t, err, ErrBountyNotFound)
}

func TestRefundDeadlineBoundary(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, newTestAddress(0xA1))
	ledger.credit(depositor, 500)
	require.NoError(t, eng.LockFunds(depositor, depositor, 7, big.NewInt(500), 1_100))

	eng.SetNowFunc(func() int64 { return 1_099 })
	err := eng.Refund(7)
	require.ErrorIs(t, err, ErrDeadlineNotPassed)
	st.discardInvocation()

	eng.SetNowFunc(func() int64 { return 1_100 })
	require.NoError(t, eng.Refund(7))
	require.Equal(t, big.NewInt(500), ledger.balance(depositor))

	esc, err := eng.EscrowInfo(7)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, esc.Status)
}

func TestNoDoublePayout(t *testing.T) {
	eng, _, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, admin)
	ledger.credit(depositor, 1_000)
	require.NoError(t, eng.LockFunds(depositor, depositor, 42, big.NewInt(1_000), 1_100))

	eng.SetNowFunc(func() int64 { return 2_000 })
	require.NoError(t, eng.Refund(42))

	err := eng.ReleaseFunds(admin, 42, newTestAddress(0xB1))
	require.ErrorIs(t, err, ErrFundsNotLocked)
	err = eng.Refund(42)
	require.ErrorIs(t, err, ErrFundsNotLocked)
}

func TestReleasePersistsStatusBeforeTransfer(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, admin)
	ledger.credit(depositor, 1_000)
	require.NoError(t, eng.LockFunds(depositor, depositor, 42, big.NewInt(1_000), 1_100))

	var observed Status
	ledger.onTransfer = func(from, to [20]byte, amount *big.Int) error {
		observed = st.escrows[42].Status
		return nil
	}
	require.NoError(t, eng.ReleaseFunds(admin, 42, newTestAddress(0xB1)))
	require.Equal(t, StatusReleased, observed)
}

func TestRefundPersistsStatusBeforeTransfer(t *testing.T) {
	eng, st, ledger := newTestEngine(t)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, newTestAddress(0xA1))
	ledger.credit(depositor, 500)
	require.NoError(t, eng.LockFunds(depositor, depositor, 7, big.NewInt(500), 1_100))

	eng.SetNowFunc(func() int64 { return 1_100 })
	var observed Status
	ledger.onTransfer = func(from, to [20]byte, amount *big.Int) error {
		observed = st.escrows[7].Status
		return nil
	}
	require.NoError(t, eng.Refund(7))
	require.Equal(t, StatusRefunded, observed)
}

func TestReentrantTransferAborts(t *testing.T) {
	eng, _, ledger := newTestEngine(t)
	admin := newTestAddress(0xA1)
	depositor := newTestAddress(0xD1)
	initEngine(t, eng, admin)
	ledger.credit(depositor, 2_000)
	require.NoError(t, eng.LockFunds(depositor, depositor, 1, big.NewInt(500), 1_100))

	// A malicious collaborator that re-enters a mutating operation during
	// the outer transfer must hit the execution guard.
	ledger.onTransfer = func(from, to [20]byte, amount *big.Int) error {
		inner := ledger.onTransfer
		ledger.onTransfer = nil
		defer func() { ledger.onTransfer = inner }()
		return eng.LockFunds(depositor, depositor, 2, big.NewInt(100), 1_100)
	}
	err := eng.ReleaseFunds(admin, 1, newTestAddress(0xB1))
	require.ErrorIs(t, err, ErrReentrancy)
}

func TestBalanceReportsVaultHoldings(t *testing.T) {
	eng, _, ledger := newTestEngine(t)
	depositor := newTestAddress(0xD1)

	_, err := eng.Balance()
	require.ErrorIs(t, err, ErrNotInitialized)

	initEngine(t, eng, newTestAddress(0xA1))
	ledger.credit(depositor, 750)
	require.NoError(t, eng.LockFunds(depositor, depositor, 3, big.NewInt(750), 1_100))

	balance, err := eng.Balance()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(750), balance)
}
