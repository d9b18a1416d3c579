package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/urfave/cli"

	"github.com/lightninglabs/paymentd/hintstore"
	"github.com/lightninglabs/paymentd/ledger"
	"github.com/lightninglabs/paymentd/lnwire"
	"github.com/lightninglabs/paymentd/payment"
	"github.com/lightninglabs/paymentd/route"
)

var sendPaymentCommand = cli.Command{
	Name:  "sendpayment",
	Usage: "Send a payment over the payment engine core.",
	Description: `
	Constructs a root Payment directly against the engine's driver
	(package payment) and blocks until the tree finishes, printing the
	final Summary. There is no gossip-routed pathfinding or RPC
	transport behind this command (spec.md §1 non-goals); it exercises
	the state machine end to end against a loopback collaborator set.
	`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "dest",
			Usage: "hex-encoded 33-byte destination node id",
		},
		cli.Int64Flag{
			Name:  "amt_msat",
			Usage: "amount to send, in millisatoshis",
		},
		cli.Int64Flag{
			Name:  "fee_limit_msat",
			Usage: "maximum fee allowed, in millisatoshis",
			Value: 10_000,
		},
		cli.Uint64Flag{
			Name:  "cltv_limit",
			Usage: "maximum acceptable total route CLTV delta",
			Value: 500,
		},
	},
	Action: sendPayment,
}

func sendPayment(ctx *cli.Context) error {
	destHex := ctx.String("dest")
	if destHex == "" {
		return fmt.Errorf("dest is required")
	}
	destBytes, err := hex.DecodeString(destHex)
	if err != nil || len(destBytes) != 33 {
		return fmt.Errorf("dest must be a hex-encoded 33-byte pubkey")
	}
	var dest route.Vertex
	copy(dest[:], destBytes)

	amt := ctx.Int64("amt_msat")
	if amt <= 0 {
		return fmt.Errorf("amt_msat must be positive")
	}

	var localNode route.Vertex
	localNode[0] = 0x02

	var paymentHash [32]byte
	if _, err := rand.Read(paymentHash[:]); err != nil {
		return fmt.Errorf("unable to generate payment hash: %w", err)
	}

	state := payment.NewRootState(localNode, clock.NewDefaultClock())
	coll := newLoopbackCollaborators(localNode)

	hints, err := openHintStore(ctx, localNode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: unable to open hint cache: %v\n", err)
	}
	if hints != nil {
		defer hints.Close()

		cachedHints, excludedNodes, err := hints.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: unable to load hint cache: %v\n", err)
		}
		for _, h := range cachedHints {
			state.AddHint(h.SCID, h.Direction, h.Enabled, h.EstimatedCapacity)
		}
		for _, v := range excludedNodes {
			state.ExcludeNode(v)
		}
	}

	modifiers := []*payment.Modifier{
		payment.RetryModifier,
		payment.RouteHintModifier,
		payment.LocalHintsModifier,
	}

	root := payment.NewRoot(
		1, dest, paymentHash, lnwire.MilliSatoshi(amt),
		lnwire.MilliSatoshi(ctx.Int64("fee_limit_msat")),
		uint32(ctx.Uint64("cltv_limit")), 800_000, modifiers, state, coll,
	)

	done := make(chan *payment.Summary, 1)
	state.OnFinished(func(s *payment.Summary) { done <- s })

	payment.Start(root)

	select {
	case summary := <-done:
		printSummary(paymentHash, summary)

		if hints != nil {
			syncErr := hints.Sync(state.Hints(), state.ExcludedNodes())
			if syncErr != nil {
				fmt.Fprintf(os.Stderr, "warning: unable to persist hint cache: %v\n", syncErr)
			}
		}

		if l, err := openLedger(ctx); err == nil {
			defer l.Close()
			rec := ledger.RecordFromSummary(paymentHash, summary, time.Now())
			if err := l.Insert(rec); err != nil {
				fmt.Fprintf(os.Stderr, "warning: unable to record ledger entry: %v\n", err)
			}
		}
		return nil

	case <-time.After(30 * time.Second):
		return fmt.Errorf("payment did not finish within 30s")
	}
}

var showResultCommand = cli.Command{
	Name:      "showresult",
	Usage:     "Look up a previously recorded payment outcome from the ledger.",
	ArgsUsage: "payment_hash",
	Action:    showResult,
}

func showResult(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one argument: payment_hash")
	}
	hashBytes, err := hex.DecodeString(ctx.Args().Get(0))
	if err != nil || len(hashBytes) != 32 {
		return fmt.Errorf("payment_hash must be a hex-encoded 32-byte value")
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	rec, err := l.Get(hash)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("no recorded outcome for that payment hash")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"field", "value"})
	t.AppendRows([]table.Row{
		{"status", rec.Status},
		{"amount_msat", rec.AmountMsat},
		{"amount_sent_msat", rec.AmountSent},
		{"parts", rec.Parts},
		{"attempts", rec.Attempts},
		{"fail_code", rec.FailCodeName},
		{"message", rec.Message},
		{"finished_at", rec.FinishedAt.Format(time.RFC3339)},
	})
	t.Render()

	return nil
}

// hintHandle bundles a hintstore.Store with the backend it was opened
// against, so callers can Close the backend once done.
type hintHandle struct {
	*hintstore.Store
	db interface{ Close() error }
}

func (h *hintHandle) Close() error {
	return h.db.Close()
}

func openHintStore(ctx *cli.Context, localNode route.Vertex) (*hintHandle, error) {
	datadir := ctx.GlobalString("datadir")
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(datadir, fmt.Sprintf("hints-%s.db", hex.EncodeToString(localNode[:4])))
	db, err := hintstore.Open(path)
	if err != nil {
		return nil, err
	}

	store, err := hintstore.New(db, localNode)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &hintHandle{Store: store, db: db}, nil
}

func openLedger(ctx *cli.Context) (*ledger.Ledger, error) {
	driver := ctx.GlobalString("ledger.driver")
	dsn := ctx.GlobalString("ledger.dsn")
	if dsn == "" {
		dsn = ctx.GlobalString("datadir") + "/paymentd.db"
	}
	return ledger.Open(ledger.Config{Driver: driver, DSN: dsn})
}

func printSummary(hash [32]byte, s *payment.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"field", "value"})
	t.AppendRow(table.Row{"payment_hash", hex.EncodeToString(hash[:])})
	t.AppendRow(table.Row{"status", s.Status.String()})
	t.AppendRow(table.Row{"amount_sent_msat", s.AmountSentMsat})
	t.AppendRow(table.Row{"parts", s.Parts})
	t.AppendRow(table.Row{"attempts", s.Attempts})
	if s.PaymentPreimage != nil {
		t.AppendRow(table.Row{"preimage", hex.EncodeToString(s.PaymentPreimage[:])})
	}
	if s.Status != payment.ResultComplete {
		t.AppendRow(table.Row{"fail_code", s.FailCodeName})
		t.AppendRow(table.Row{"message", s.Message})
	}
	t.Render()
}
