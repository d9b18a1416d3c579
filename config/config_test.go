package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidation(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "paymentd")
	require.NoError(t, cfg.validate())
}

func TestValidateRejectsNegativeRetryBudget(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.RetryBudget = -1
	require.Error(t, cfg.validate())
}

func TestValidateRejectsUnknownLedgerDriver(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.LedgerDriver = "mysql"
	require.Error(t, cfg.validate())
}

func TestValidateRejectsMalformedRetryBackoff(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.RetryBackoff = "not-a-duration"
	require.Error(t, cfg.validate())
}

func TestRetryPacerZeroIsNil(t *testing.T) {
	cfg := Default()
	pacer, err := cfg.RetryPacer()
	require.NoError(t, err)
	require.Nil(t, pacer)
}

func TestRetryPacerNonZeroReturnsTicker(t *testing.T) {
	cfg := Default()
	cfg.RetryBackoff = "250ms"
	pacer, err := cfg.RetryPacer()
	require.NoError(t, err)
	require.NotNil(t, pacer)
}
