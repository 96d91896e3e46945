package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bountyvault/storage"
)

// recordTTL is the renewal window stamped onto record-tier entries. Expiry is
// bookkeeping for an external storage-lifetime mechanism; the state layer
// itself never drops expired records.
const recordTTL = 30 * 24 * time.Hour

// Manager hands out journaled transactions over a key-value backend. Every
// escrow invocation runs inside exactly one transaction: all writes buffer in
// memory and reach the backend only on Commit, so a failed invocation leaves
// no trace behind.
type Manager struct {
	db    storage.Database
	nowFn func() int64
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the clock used for record-tier expiry stamps.
// Primarily intended for tests.
func (m *Manager) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

// Begin opens a new transaction against the current committed state.
func (m *Manager) Begin() *Txn {
	return &Txn{
		mgr:     m,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Txn buffers reads and writes for a single invocation. It is not safe for
// concurrent use; invocations are serialized by the caller.
type Txn struct {
	mgr      *Manager
	writes   map[string][]byte
	deletes  map[string]struct{}
	finished bool
}

var errTxnFinished = errors.New("state: transaction already finished")

// Get returns the value visible to this transaction, preferring buffered
// writes over committed state.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	if t.finished {
		return nil, false, errTxnFinished
	}
	k := string(key)
	if _, ok := t.deletes[k]; ok {
		return nil, false, nil
	}
	if val, ok := t.writes[k]; ok {
		return append([]byte(nil), val...), true, nil
	}
	val, err := t.mgr.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Has reports whether the key is visible to this transaction.
func (t *Txn) Has(key []byte) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// Put buffers a write.
func (t *Txn) Put(key, value []byte) error {
	if t.finished {
		return errTxnFinished
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

// Delete buffers a removal.
func (t *Txn) Delete(key []byte) error {
	if t.finished {
		return errTxnFinished
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

// Commit flushes all buffered writes to the backend as one atomic batch, so
// a backend failure applies either the whole invocation or none of it.
func (t *Txn) Commit() error {
	if t.finished {
		return errTxnFinished
	}
	t.finished = true
	batch := storage.NewBatch()
	for k, v := range t.writes {
		batch.Put([]byte(k), v)
	}
	for k := range t.deletes {
		batch.Delete([]byte(k))
	}
	if err := t.mgr.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	return nil
}

// Discard drops every buffered write. Safe to call after Commit; subsequent
// operations on the transaction fail.
func (t *Txn) Discard() {
	t.finished = true
	t.writes = nil
	t.deletes = nil
}

// recordEnvelope wraps record-tier values with renewal metadata.
type recordEnvelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"exp"`
}

// PutRecord stores a record-tier value stamped with a fresh expiry.
func (t *Txn) PutRecord(key, value []byte) error {
	env := recordEnvelope{
		Value:     append([]byte(nil), value...),
		ExpiresAt: t.mgr.nowFn() + int64(recordTTL/time.Second),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("state: encode record envelope: %w", err)
	}
	return t.Put(key, raw)
}

// GetRecord reads a record-tier value and renews its expiry in the same
// transaction, so touched records never lapse while in active use.
func (t *Txn) GetRecord(key []byte) ([]byte, bool, error) {
	raw, ok, err := t.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var env recordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("state: decode record envelope: %w", err)
	}
	if err := t.PutRecord(key, env.Value); err != nil {
		return nil, false, err
	}
	return env.Value, true, nil
}
