// Package config loads the payment engine's process configuration,
// following the same load-then-validate shape as lnd's loadConfig:
// apply defaults, parse flags over them, then validate (which also
// normalizes the data dir path), and only then let the caller proceed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	defaultDataDir     = "paymentd"
	defaultLogFilename = "paymentd.log"
	defaultLogLevel    = "info"

	// defaultRetryBudget is the number of retries a root payment is
	// granted before the retry modifier refuses to spawn another
	// child, per spec.md §4.F-H's standard retry modifier.
	defaultRetryBudget = 10

	// defaultLedgerDriver picks the durable ledger backend when none
	// is specified; "sqlite" requires no external service.
	defaultLedgerDriver = "sqlite"
)

// Config holds every knob the engine needs before it can construct a
// root Payment. It deliberately says nothing about peer connectivity
// or wallet funding: those belong to the external collaborators named
// in spec.md §6.
type Config struct {
	DataDir  string `long:"datadir" description:"directory to store the hint cache and ledger database in"`
	LogDir   string `long:"logdir" description:"directory to log to"`
	LogLevel string `long:"loglevel" description:"logging level for all subsystems"`

	RetryBudget int `long:"retrybudget" description:"number of retries granted to a root payment"`

	LedgerDriver string `long:"ledger.driver" description:"ledger backend: sqlite or postgres"`
	LedgerDSN    string `long:"ledger.dsn" description:"data source name for the ledger backend"`

	RetryBackoff string `long:"retrybackoff" description:"delay between a FAILED payment and its retry child, e.g. 250ms; 0 disables pacing"`
}

// Default returns a Config populated with the same defaults lndMain
// falls back to before flag parsing overrides them.
func Default() *Config {
	return &Config{
		DataDir:      defaultDataDir,
		LogDir:       filepath.Join(defaultDataDir, "logs"),
		LogLevel:     defaultLogLevel,
		RetryBudget:  defaultRetryBudget,
		LedgerDriver: defaultLedgerDriver,
		RetryBackoff: "0s",
	}
}

// Load parses os.Args into a Config seeded with Default, the way
// loadConfig in the teacher's lnd.go builds on top of a zero-value
// config before handing it to go-flags.
func Load() (*Config, error) {
	cfg := Default()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok &&
			flagsErr.Type == flags.ErrHelp {

			os.Exit(0)
		}
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RetryBudget < 0 {
		return fmt.Errorf("retrybudget must be >= 0, got %d",
			c.RetryBudget)
	}
	switch c.LedgerDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown ledger driver %q, want "+
			"\"sqlite\" or \"postgres\"", c.LedgerDriver)
	}

	cleanDir := filepath.Clean(c.DataDir)
	c.DataDir = cleanDir
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("unable to create data dir: %w", err)
	}

	if _, err := time.ParseDuration(c.RetryBackoff); err != nil {
		return fmt.Errorf("invalid retrybackoff %q: %w", c.RetryBackoff, err)
	}

	return nil
}

// RetryPacer builds the ticker.Ticker package.RetryPacer should be set
// to, derived from RetryBackoff. A zero duration returns a nil
// Ticker, meaning immediate retries (payment.RetryPacer's default
// behavior). The returned ticker is not yet Resume()'d; the caller
// starts it once it installs the ticker into package payment.
func (c *Config) RetryPacer() (ticker.Ticker, error) {
	d, err := time.ParseDuration(c.RetryBackoff)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		return nil, nil
	}
	return ticker.New(d), nil
}
