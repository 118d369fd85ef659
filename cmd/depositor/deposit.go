package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/event"
)

var depositCmd = &cli.Command{
	Name:      "deposit",
	Usage:     "deposit the job message in FILE, writing its events to stdout as JSON",
	ArgsUsage: "FILE",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return cli.Exit("deposit needs exactly one message file", 2)
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return err
		}
		job, err := deposit.ParseMessage(b)
		if err != nil {
			return err
		}
		if job.UserStore.Type == "" {
			job.UserStore = cfg.UserStore.Spec()
		}
		if job.ArchiveStore.Type == "" {
			job.ArchiveStore = cfg.ArchiveStore.Spec()
		}

		d := newDeposit(cfg)
		d.Sink = event.NewJSONSink(os.Stdout)
		rec, err := d.Run(job)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Fprintf(os.Stderr, "archived as %s (%d bytes, %s %s)\n",
			rec.ArchiveID, rec.ArchiveSize, rec.DigestAlgorithm, rec.Digest)
		return nil
	},
}
