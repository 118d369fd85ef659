package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ndlib/depositor/event"
	"github.com/ndlib/depositor/server"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run a deposit worker taking jobs over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "port",
			Usage: "port to listen on, overriding the configuration",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if p := cctx.String("port"); p != "" {
			cfg.Port = p
		}

		d := newDeposit(cfg)
		d.Sink = event.NewLogSink()
		s := &server.RESTServer{
			PortNumber:   cfg.Port,
			PProfPort:    cfg.PProfPort,
			Deposit:      d,
			UserStore:    cfg.UserStore.Spec(),
			ArchiveStore: cfg.ArchiveStore.Spec(),
			Workers:      cfg.Workers,
			MySQL:        cfg.MySQL,
			Database:     cfg.Database,
		}
		if cfg.Tokens != "" {
			s.Validator, err = server.NewListDecoderFile(cfg.Tokens)
			if err != nil {
				return err
			}
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			log.Println("Received signal, stopping")
			if err := s.Stop(); err != nil {
				log.Println(err)
			}
		}()

		return s.Run()
	},
}
