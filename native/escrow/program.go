package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// InitializeProgram registers a program aggregate with a zero balance. One
// aggregate exists per program id.
func (e *Engine) InitializeProgram(programID string, admin [20]byte, token string) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(programID)
	if trimmed == "" {
		return fmt.Errorf("escrow: program id required")
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	if _, ok, err := e.state.ProgramGet(trimmed); err != nil {
		return err
	} else if ok {
		return ErrProgramExists
	}
	prog := &Program{
		ProgramID:        trimmed,
		Admin:            admin,
		Token:            normalized,
		TotalFunds:       big.NewInt(0),
		RemainingBalance: big.NewInt(0),
	}
	if err := e.state.ProgramPut(prog); err != nil {
		return err
	}
	e.emit(NewProgramInitializedEvent(prog, e.now()))
	return nil
}

// LockProgramFunds accounts for funds already transferred into custody,
// growing both the running balance and the cumulative deposit total. The
// operation does not pull funds itself; the caller must have moved them in
// beforehand.
func (e *Engine) LockProgramFunds(programID string, amount *big.Int) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	release, err := e.acquireGuard()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	prog, ok, err := e.state.ProgramGet(strings.TrimSpace(programID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrProgramNotFound
	}
	prog.TotalFunds = new(big.Int).Add(prog.TotalFunds, amount)
	prog.RemainingBalance = new(big.Int).Add(prog.RemainingBalance, amount)
	if err := e.state.ProgramPut(prog); err != nil {
		return err
	}
	e.emit(NewProgramLockedEvent(prog, amount))
	return release()
}

// SinglePayout disburses one amount to one recipient from the program's
// running balance.
func (e *Engine) SinglePayout(caller [20]byte, programID string, recipient [20]byte, amount *big.Int) error {
	return e.BatchPayout(caller, programID, [][20]byte{recipient}, []*big.Int{amount})
}

// BatchPayout disburses to every recipient or to none: any validation or
// transfer failure aborts the whole call and the enclosing transaction
// discards all partial writes.
func (e *Engine) BatchPayout(caller [20]byte, programID string, recipients [][20]byte, amounts []*big.Int) error {
	if err := e.ensureWired(); err != nil {
		return err
	}
	release, err := e.acquireGuard()
	if err != nil {
		return err
	}
	if len(recipients) == 0 || len(recipients) != len(amounts) {
		return ErrLengthMismatch
	}
	prog, ok, err := e.state.ProgramGet(strings.TrimSpace(programID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrProgramNotFound
	}
	if caller != prog.Admin {
		return ErrUnauthorized
	}
	total := big.NewInt(0)
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		total = total.Add(total, amount)
	}
	if prog.RemainingBalance.Cmp(total) < 0 {
		return ErrInsufficientBalance
	}
	// Decrement before issuing transfers so a re-entering collaborator sees
	// the reduced balance.
	prog.RemainingBalance = new(big.Int).Sub(prog.RemainingBalance, total)
	if err := e.state.ProgramPut(prog); err != nil {
		return err
	}
	vault := VaultAddress(prog.Token)
	for i, recipient := range recipients {
		if err := e.ledger.Transfer(vault, recipient, amounts[i]); err != nil {
			return err
		}
	}
	e.emit(NewProgramPayoutEvent(prog, recipients, total))
	return release()
}

// ProgramInfo returns the aggregate for a program id.
func (e *Engine) ProgramInfo(programID string) (*Program, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	prog, ok, err := e.state.ProgramGet(strings.TrimSpace(programID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProgramNotFound
	}
	return prog.Clone(), nil
}

// ProgramRemainingBalance returns the undisbursed balance for a program id.
func (e *Engine) ProgramRemainingBalance(programID string) (*big.Int, error) {
	prog, err := e.ProgramInfo(programID)
	if err != nil {
		return nil, err
	}
	return prog.RemainingBalance, nil
}
