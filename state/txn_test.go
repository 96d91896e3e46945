package state

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"bountyvault/storage"
)

func TestTxnCommitFlushesWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	txn := mgr.Begin()
	require.NoError(t, txn.Put([]byte("k"), []byte("v")))

	// Not visible outside the transaction until commit.
	_, err := db.Get([]byte("k"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	require.NoError(t, txn.Commit())
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestTxnDiscardDropsEverything(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("keep"), []byte("old")))
	mgr := NewManager(db)

	txn := mgr.Begin()
	require.NoError(t, txn.Put([]byte("new"), []byte("x")))
	require.NoError(t, txn.Delete([]byte("keep")))
	txn.Discard()

	_, err := db.Get([]byte("new"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
	got, err := db.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)
}

// brokenDB refuses batch writes, standing in for a backend failure at
// commit time.
type brokenDB struct {
	*storage.MemDB
}

func (db *brokenDB) Write(*storage.Batch) error {
	return errors.New("write failed")
}

func TestTxnCommitIsAtomicOnBackendFailure(t *testing.T) {
	mem := storage.NewMemDB()
	require.NoError(t, mem.Put([]byte("keep"), []byte("old")))
	mgr := NewManager(&brokenDB{MemDB: mem})

	txn := mgr.Begin()
	require.NoError(t, txn.Put([]byte("new"), []byte("x")))
	require.NoError(t, txn.Delete([]byte("keep")))
	require.Error(t, txn.Commit())

	// The rejected batch applied nothing.
	_, err := mem.Get([]byte("new"))
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
	got, err := mem.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got)
}

func TestTxnReadsOwnWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	txn := mgr.Begin()
	require.NoError(t, txn.Put([]byte("k"), []byte("v")))
	val, ok, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), val)

	require.NoError(t, txn.Delete([]byte("k")))
	_, ok, err = txn.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxnFinishedRejectsUse(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	txn := mgr.Begin()
	require.NoError(t, txn.Commit())

	require.Error(t, txn.Put([]byte("k"), []byte("v")))
	_, _, err := txn.Get([]byte("k"))
	require.Error(t, err)
	require.Error(t, txn.Commit())
}

func TestRecordTierRenewsExpiryOnAccess(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	now := int64(1_000)
	mgr.SetNowFunc(func() int64 { return now })

	txn := mgr.Begin()
	require.NoError(t, txn.PutRecord([]byte("r"), []byte("payload")))
	require.NoError(t, txn.Commit())

	var first recordEnvelope
	raw, err := db.Get([]byte("r"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &first))
	require.Equal(t, []byte("payload"), first.Value)

	// Reading later renews the stamp once the transaction commits.
	now = 50_000
	txn = mgr.Begin()
	val, ok, err := txn.GetRecord([]byte("r"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), val)
	require.NoError(t, txn.Commit())

	var renewed recordEnvelope
	raw, err = db.Get([]byte("r"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &renewed))
	require.Greater(t, renewed.ExpiresAt, first.ExpiresAt)
}
