package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"bountyvault/core/types"
)

// Storage layout: a small instance tier (config, guard) that never expires
// and a record tier (escrows, programs) whose entries carry renewable expiry
// metadata managed by the transaction layer.
var (
	configKey       = []byte("escrow/config")
	guardKey        = []byte("escrow/guard")
	escrowKeyPrefix = []byte("escrow/record/")
	programPrefix   = []byte("escrow/program/")
	accountPrefix   = []byte("account/")
)

// KV is the slice of a state transaction the escrow module needs. Instance
// keys use Put/Get/Delete; record keys go through the record-tier helpers so
// their lifetimes renew on access.
type KV interface {
	Get(key []byte) ([]byte, bool, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	PutRecord(key, value []byte) error
	GetRecord(key []byte) ([]byte, bool, error)
}

// State adapts a key-value transaction into the typed accessors used by the
// engine. All reads return clones; mutations only land when the enclosing
// transaction commits.
type State struct {
	kv KV
}

// NewState wraps the supplied transaction slice.
func NewState(kv KV) *State {
	return &State{kv: kv}
}

func escrowKey(bountyID uint64) []byte {
	key := make([]byte, len(escrowKeyPrefix)+8)
	copy(key, escrowKeyPrefix)
	binary.BigEndian.PutUint64(key[len(escrowKeyPrefix):], bountyID)
	return key
}

func programKey(programID string) []byte {
	return append(append([]byte(nil), programPrefix...), programID...)
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), hex.EncodeToString(addr[:])...)
}

// ConfigGet loads the one-time service configuration.
func (s *State) ConfigGet() (*Config, bool, error) {
	raw, ok, err := s.kv.Get(configKey)
	if err != nil || !ok {
		return nil, ok, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, false, fmt.Errorf("escrow: decode config: %w", err)
	}
	return &cfg, true, nil
}

// ConfigPut persists the service configuration.
func (s *State) ConfigPut(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("escrow: nil config")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("escrow: encode config: %w", err)
	}
	return s.kv.Put(configKey, raw)
}

// EscrowGet loads a bounty escrow record.
func (s *State) EscrowGet(bountyID uint64) (*Escrow, bool, error) {
	raw, ok, err := s.kv.GetRecord(escrowKey(bountyID))
	if err != nil || !ok {
		return nil, ok, err
	}
	var esc Escrow
	if err := json.Unmarshal(raw, &esc); err != nil {
		return nil, false, fmt.Errorf("escrow: decode record %d: %w", bountyID, err)
	}
	return &esc, true, nil
}

// EscrowPut persists a bounty escrow record after sanitising it.
func (s *State) EscrowPut(esc *Escrow) error {
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("escrow: encode record %d: %w", sanitized.BountyID, err)
	}
	return s.kv.PutRecord(escrowKey(sanitized.BountyID), raw)
}

// EscrowHas reports whether a record exists without renewing its lifetime.
func (s *State) EscrowHas(bountyID uint64) (bool, error) {
	return s.kv.Has(escrowKey(bountyID))
}

// ProgramGet loads a program aggregate.
func (s *State) ProgramGet(programID string) (*Program, bool, error) {
	raw, ok, err := s.kv.GetRecord(programKey(programID))
	if err != nil || !ok {
		return nil, ok, err
	}
	var prog Program
	if err := json.Unmarshal(raw, &prog); err != nil {
		return nil, false, fmt.Errorf("escrow: decode program %s: %w", programID, err)
	}
	return &prog, true, nil
}

// ProgramPut persists a program aggregate after sanitising it.
func (s *State) ProgramPut(prog *Program) error {
	sanitized, err := SanitizeProgram(prog)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("escrow: encode program %s: %w", sanitized.ProgramID, err)
	}
	return s.kv.PutRecord(programKey(sanitized.ProgramID), raw)
}

// GuardActive reports whether the execution guard is set in the current
// transaction's view.
func (s *State) GuardActive() (bool, error) {
	return s.kv.Has(guardKey)
}

// GuardSet raises the execution guard.
func (s *State) GuardSet() error {
	return s.kv.Put(guardKey, []byte{1})
}

// GuardClear lowers the execution guard.
func (s *State) GuardClear() error {
	return s.kv.Delete(guardKey)
}

// GetAccount loads the account for an address, returning a zero-balance
// account when none exists yet.
func (s *State) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, ok, err := s.kv.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.EnsureAccount(nil), nil
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("escrow: decode account: %w", err)
	}
	return types.EnsureAccount(&acc), nil
}

// PutAccount persists the account for an address.
func (s *State) PutAccount(addr [20]byte, acc *types.Account) error {
	raw, err := json.Marshal(types.EnsureAccount(acc))
	if err != nil {
		return fmt.Errorf("escrow: encode account: %w", err)
	}
	return s.kv.Put(accountKey(addr), raw)
}
