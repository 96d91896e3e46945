package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Status represents the lifecycle states of a single escrow record.
type Status uint8

const (
	StatusLocked Status = iota + 1
	StatusReleased
	StatusRefunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusLocked, StatusReleased, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusLocked:
		return "locked"
	case StatusReleased:
		return "released"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Config holds the one-time service configuration: the admin authorized to
// release funds and the token held in custody. Written exactly once.
type Config struct {
	Admin [20]byte `json:"admin"`
	Token string   `json:"token"`
}

// Escrow captures the immutable metadata and runtime status of one bounty
// escrow. Depositor and Amount never change after creation; Status performs
// exactly one terminal transition out of StatusLocked.
type Escrow struct {
	BountyID  uint64   `json:"bountyId"`
	Depositor [20]byte `json:"depositor"`
	Amount    *big.Int `json:"amount"`
	Status    Status   `json:"status"`
	Deadline  int64    `json:"deadline"`
	CreatedAt int64    `json:"createdAt"`
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Program is the aggregate-balance escrow used by multi-recipient programs.
// RemainingBalance never goes negative; TotalFunds only grows.
type Program struct {
	ProgramID        string   `json:"programId"`
	Admin            [20]byte `json:"admin"`
	Token            string   `json:"token"`
	TotalFunds       *big.Int `json:"totalFunds"`
	RemainingBalance *big.Int `json:"remainingBalance"`
}

// Clone returns a deep copy of the program aggregate.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	clone := *p
	if p.TotalFunds != nil {
		clone.TotalFunds = new(big.Int).Set(p.TotalFunds)
	} else {
		clone.TotalFunds = big.NewInt(0)
	}
	if p.RemainingBalance != nil {
		clone.RemainingBalance = new(big.Int).Set(p.RemainingBalance)
	} else {
		clone.RemainingBalance = big.NewInt(0)
	}
	return &clone
}

// NormalizeToken validates a token symbol and returns the canonical uppercase
// form. Symbols are short alphanumeric tickers.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("escrow: token symbol required")
	}
	if len(trimmed) > 16 {
		return "", fmt.Errorf("escrow: token symbol too long: %s", trimmed)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("escrow: invalid token symbol: %s", symbol)
		}
	}
	return trimmed, nil
}

// SanitizeEscrow validates and normalises the supplied escrow record,
// returning a cloned instance with a non-nil amount. The original value is
// not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: amount must be positive")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status: %d", clone.Status)
	}
	return clone, nil
}

// SanitizeProgram validates and normalises a program aggregate.
func SanitizeProgram(p *Program) (*Program, error) {
	if p == nil {
		return nil, fmt.Errorf("escrow: nil program")
	}
	clone := p.Clone()
	clone.ProgramID = strings.TrimSpace(clone.ProgramID)
	if clone.ProgramID == "" {
		return nil, fmt.Errorf("escrow: program id required")
	}
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.TotalFunds.Sign() < 0 || clone.RemainingBalance.Sign() < 0 {
		return nil, fmt.Errorf("escrow: program balances must be non-negative")
	}
	if clone.RemainingBalance.Cmp(clone.TotalFunds) > 0 {
		return nil, fmt.Errorf("escrow: remaining balance exceeds total funds")
	}
	return clone, nil
}
