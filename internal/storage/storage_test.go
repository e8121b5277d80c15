package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRoundTrip(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)

	rec := RunRecord{
		Chain:       "sepolia",
		SafeAddress: "0x5AfE000000000000000000000000000000005afe",
		BatchTx:     "0x01",
		OrderUID:    "0xabcdef",
		Scheme:      "presign",
		Status:      "open",
		UpdatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, j.Save(rec))

	got, err := j.Last("sepolia")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	rec.Status = "fulfilled"
	require.NoError(t, j.Save(rec))
	got, err = j.Last("sepolia")
	require.NoError(t, err)
	assert.Equal(t, "fulfilled", got.Status)

	entries, err := os.ReadDir(j.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestJournalPerChain(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, j.Save(RunRecord{Chain: "sepolia", OrderUID: "0x01"}))
	require.NoError(t, j.Save(RunRecord{Chain: "gnosis", OrderUID: "0x02"}))

	got, err := j.Last("gnosis")
	require.NoError(t, err)
	assert.Equal(t, "0x02", got.OrderUID)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = j.Last("mainnet")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestJournalRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "base_last_run.json"), []byte("{"), 0600))

	_, err = j.Last("base")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRecord)
}

func TestJournalSaveRequiresChain(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, j.Save(RunRecord{}))
}
