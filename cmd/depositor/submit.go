package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ndlib/depositor/client"
)

var submitCmd = &cli.Command{
	Name:      "submit",
	Usage:     "send the job message in FILE to a running worker",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Value:   "http://localhost:14000",
			Usage:   "URL of the worker",
			EnvVars: []string{"DEPOSITOR_SERVER"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "API key",
			EnvVars: []string{"DEPOSITOR_TOKEN"},
		},
		&cli.BoolFlag{
			Name:  "wait",
			Usage: "wait for the deposit to finish",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 12 * time.Hour,
			Usage: "how long to wait",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return cli.Exit("submit needs exactly one message file", 2)
		}
		b, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return err
		}
		c := &client.Connection{
			HostURL: cctx.String("server"),
			Token:   cctx.String("token"),
		}
		id, err := c.Submit(b)
		if err != nil {
			return err
		}
		fmt.Println(id)
		if !cctx.Bool("wait") {
			return nil
		}
		info, err := c.WaitForJob(id, cctx.Duration("timeout"))
		if err == client.ErrJobFailed {
			return cli.Exit(info.Message, 1)
		} else if err != nil {
			return err
		}
		fmt.Printf("archived as %s (%d bytes, %s %s)\n",
			info.ArchiveID, info.ArchiveSize, info.DigestAlgorithm, info.Digest)
		return nil
	},
}
