// Command paycli is a thin command-boundary demo over the payment
// engine: it constructs a root Payment directly in-process (there is
// no JSON-RPC transport in scope, per spec.md §1) and prints its
// final Summary. It stands in for the "exit from the system boundary"
// named in spec.md §6, the way lncli stands in front of lnd's RPC
// surface.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[paycli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "paycli"
	app.Version = "0.1"
	app.Usage = "drive the paymentd core payment engine from the command line"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Value: "paymentd",
			Usage: "directory holding the hint cache and ledger database",
		},
		cli.StringFlag{
			Name:  "ledger.driver",
			Value: "sqlite",
			Usage: "ledger backend: sqlite or postgres",
		},
		cli.StringFlag{
			Name:  "ledger.dsn",
			Value: "",
			Usage: "data source name for the ledger backend",
		},
	}
	app.Commands = []cli.Command{
		sendPaymentCommand,
		showResultCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
