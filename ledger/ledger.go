// Package ledger persists an append-only audit record of every
// terminal root payment result. This is functionality spec.md's
// distillation dropped entirely (the original lnd persists payment
// outcomes in wallet/invoices.c's store), added back here as
// ambient, non-functional enrichment: it does not change §3/§4
// semantics, only what is queryable after the fact. A root's
// in-memory Summary (package payment) remains authoritative; the
// ledger is written once, after the fact, and is never read back into
// a live payment's decision making.
package ledger

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"

	"github.com/lightninglabs/paymentd/payment"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS payment_results (
	payment_hash     BLOB PRIMARY KEY,
	status           TEXT NOT NULL,
	amount_msat      INTEGER NOT NULL,
	amount_sent_msat INTEGER NOT NULL,
	parts            INTEGER NOT NULL,
	attempts         INTEGER NOT NULL,
	preimage         BLOB,
	fail_code        INTEGER NOT NULL,
	fail_code_name   TEXT NOT NULL,
	message          TEXT NOT NULL,
	finished_at      DATETIME NOT NULL
);
`

// Config selects and configures the ledger's storage backend.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is the driver-specific data source name: a file path for
	// sqlite, a connection string for postgres.
	DSN string
}

// Ledger is the append-only store of terminal payment results.
type Ledger struct {
	db     *sql.DB
	driver string
}

// Open opens (and, for sqlite, creates) the ledger database and
// ensures its schema is present: sqlite gets its single table created
// directly, postgres is brought up to date via golang-migrate.
func Open(cfg Config) (*Ledger, error) {
	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ledger: unable to open %s database: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, driver: cfg.Driver}

	switch l.driver {
	case "postgres":
		if err := migratePostgres(db); err != nil {
			db.Close()
			return nil, err
		}
	default:
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: unable to create schema: %w", err)
		}
	}

	return l, nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case "sqlite", "":
		return "sqlite", nil
	case "postgres":
		return "pgx", nil
	default:
		return "", fmt.Errorf("ledger: unknown driver %q", driver)
	}
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record is one terminal root payment outcome, flattened from
// payment.Summary for storage.
type Record struct {
	PaymentHash  [32]byte
	Status       string
	AmountMsat   uint64
	AmountSent   uint64
	Parts        int
	Attempts     int
	Preimage     *[32]byte
	FailCode     uint16
	FailCodeName string
	Message      string
	FinishedAt   time.Time
}

// RecordFromSummary flattens a root's final Summary (package payment)
// plus the identifiers the orchestrator knows but the aggregator
// itself doesn't carry, into a ledger Record.
func RecordFromSummary(hash [32]byte, s *payment.Summary, finishedAt time.Time) Record {
	return Record{
		PaymentHash:  hash,
		Status:       s.Status.String(),
		AmountMsat:   uint64(s.AmountMsat),
		AmountSent:   uint64(s.AmountSentMsat),
		Parts:        s.Parts,
		Attempts:     s.Attempts,
		Preimage:     s.PaymentPreimage,
		FailCode:     uint16(s.FailCode),
		FailCodeName: s.FailCodeName,
		Message:      s.Message,
		FinishedAt:   finishedAt,
	}
}

// placeholder returns the driver-appropriate positional parameter
// marker for the i'th (1-indexed) bound argument: sqlite and its
// go-sqlite3-alike drivers accept "?", pgx requires "$1"-style markers.
func (l *Ledger) placeholder(i int) string {
	if l.driver == "postgres" {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (l *Ledger) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(l.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert appends a terminal record. Inserting the same payment hash
// twice is a no-op: a root's result is only ever finished once
// (payment.RootState.finish is sync.Once-guarded), but the ledger
// stays safe to call from an at-least-once delivery path upstream of
// it.
func (l *Ledger) Insert(rec Record) error {
	var preimage []byte
	if rec.Preimage != nil {
		preimage = rec.Preimage[:]
	}

	query := l.bind(`
		INSERT INTO payment_results (
			payment_hash, status, amount_msat, amount_sent_msat,
			parts, attempts, preimage, fail_code, fail_code_name,
			message, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_hash) DO NOTHING
	`)

	_, err := l.db.Exec(query,
		rec.PaymentHash[:], rec.Status, rec.AmountMsat, rec.AmountSent,
		rec.Parts, rec.Attempts, preimage, rec.FailCode, rec.FailCodeName,
		rec.Message, rec.FinishedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer beat us to the same payment hash;
			// the record already exists, which is exactly the outcome
			// ON CONFLICT DO NOTHING was asking for.
			return nil
		}
		return fmt.Errorf("ledger: insert failed: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-key
// violation, for drivers/versions where ON CONFLICT DO NOTHING isn't
// enough to suppress the error outright.
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.SQLState() == pgerrcode.UniqueViolation
	}
	return false
}

func asPgError(err error, target *interface{ SQLState() string }) bool {
	type sqlStater interface{ SQLState() string }
	for err != nil {
		if s, ok := err.(sqlStater); ok {
			*target = s
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Get looks up a payment's recorded outcome by its payment hash.
func (l *Ledger) Get(hash [32]byte) (*Record, error) {
	query := l.bind(`
		SELECT payment_hash, status, amount_msat, amount_sent_msat,
			parts, attempts, preimage, fail_code, fail_code_name,
			message, finished_at
		FROM payment_results WHERE payment_hash = ?
	`)
	row := l.db.QueryRow(query, hash[:])

	var rec Record
	var hashBytes, preimageBytes []byte
	if err := row.Scan(&hashBytes, &rec.Status, &rec.AmountMsat,
		&rec.AmountSent, &rec.Parts, &rec.Attempts, &preimageBytes,
		&rec.FailCode, &rec.FailCodeName, &rec.Message, &rec.FinishedAt); err != nil {

		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: lookup failed: %w", err)
	}

	copy(rec.PaymentHash[:], hashBytes)
	if len(preimageBytes) == 32 {
		var p [32]byte
		copy(p[:], preimageBytes)
		rec.Preimage = &p
	}

	return &rec, nil
}
