package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/paymentd/payment"
)

func TestInsertAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(Config{Driver: "sqlite", DSN: dbPath})
	require.NoError(t, err)
	defer l.Close()

	var hash [32]byte
	hash[0] = 0xAB
	var preimage [32]byte
	preimage[0] = 0xCD

	summary := &payment.Summary{
		Status:         payment.ResultComplete,
		AmountMsat:     1000,
		AmountSentMsat: 1000,
		Parts:          1,
		Attempts:       1,
		PaymentPreimage: &preimage,
	}

	finishedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := RecordFromSummary(hash, summary, finishedAt)
	require.NoError(t, l.Insert(rec))

	got, err := l.Get(hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, hash, got.PaymentHash)
	require.Equal(t, "complete", got.Status)
	require.Equal(t, uint64(1000), got.AmountMsat)
	require.Equal(t, &preimage, got.Preimage)
}

func TestInsertIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(Config{Driver: "sqlite", DSN: dbPath})
	require.NoError(t, err)
	defer l.Close()

	var hash [32]byte
	hash[0] = 0x01

	summary := &payment.Summary{
		Status:   payment.ResultFailed,
		FailCode: payment.RouteNotFound,
	}
	rec := RecordFromSummary(hash, summary, time.Now())

	require.NoError(t, l.Insert(rec))
	require.NoError(t, l.Insert(rec))

	got, err := l.Get(hash)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestGetMissingReturnsNil(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(Config{Driver: "sqlite", DSN: dbPath})
	require.NoError(t, err)
	defer l.Close()

	var hash [32]byte
	hash[0] = 0xFF

	got, err := l.Get(hash)
	require.NoError(t, err)
	require.Nil(t, got)
}
