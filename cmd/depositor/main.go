// Command depositor runs deposits into a preservation archive. It can run
// as a long lived worker taking jobs over HTTP, or deposit a single job
// message from a file.
package main

import (
	"log"
	"os"

	raven "github.com/getsentry/raven-go"
	"github.com/urfave/cli/v2"

	"github.com/ndlib/depositor/config"
	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/packager"
	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/server"
	"github.com/ndlib/depositor/storage"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "TOML configuration `FILE`",
	EnvVars: []string{"DEPOSITOR_CONFIG"},
}

func main() {
	app := &cli.App{
		Name:    "depositor",
		Usage:   "package files as bags and deposit them in an archive",
		Version: server.Version,
		Flags:   []cli.Flag{configFlag},
		Commands: []*cli.Command{
			serveCmd,
			depositCmd,
			submitCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Printf("depositor: %s", err)
		os.Exit(1)
	}
}

// loadConfig reads the file given with --config, or the defaults if there
// is none. Sentry reporting is set up as a side effect.
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if fname := cctx.String(configFlag.Name); fname != "" {
		var err error
		cfg, err = config.Load(fname)
		if err != nil {
			return nil, err
		}
	}
	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			return nil, err
		}
		raven.SetRelease(server.Version)
	}
	return cfg, nil
}

// newDeposit builds the deposit pipeline described by cfg.
func newDeposit(cfg *config.Config) *deposit.Deposit {
	return &deposit.Deposit{
		TempDir:  cfg.TempDir,
		MetaDir:  cfg.MetaDir,
		Registry: storage.NewDefaultRegistry(),
		Packager: packager.New(cfg.Algorithm()),
		Progress: progress.Options{Interval: cfg.ProgressInterval.Std()},
	}
}
