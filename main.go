package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/beanbocchi/stowage/config"
	"github.com/beanbocchi/stowage/internal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg *config.Config
	app := &cli.App{
		Name:  "stowage",
		Usage: "Move objects in and out of an object storage bucket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the YAML config file",
				Value:   "config.yaml",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.Load(c.String("config"))
			if err != nil {
				return err
			}
			internal.SetupLogger(cfg.Log)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP gateway",
				Action: func(c *cli.Context) error {
					return internal.Start(c.Context, cfg)
				},
			},
			{
				Name:      "get",
				Usage:     "Download an object to a file, or stdout",
				ArgsUsage: "<object> [file]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verify", Usage: "Print the BLAKE3 hash of the downloaded bytes"},
				},
				Action: func(c *cli.Context) error { return runGet(c, cfg) },
			},
			{
				Name:      "put",
				Usage:     "Upload a file as a multipart upload",
				ArgsUsage: "<file> [object]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "part-size", Usage: "Part size in bytes (default from config)"},
					&cli.StringFlag{Name: "content-type", Usage: "Content type of the object"},
					&cli.BoolFlag{Name: "abort-on-failure", Usage: "Abort the upload session if the upload fails"},
				},
				Action: func(c *cli.Context) error { return runPut(c, cfg) },
			},
			{
				Name:      "delete",
				Usage:     "Delete an object",
				ArgsUsage: "<object>",
				Action:    func(c *cli.Context) error { return runDelete(c, cfg) },
			},
			{
				Name:  "uploads",
				Usage: "List journaled multipart uploads",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Usage: "Only uploads in this state"},
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(c *cli.Context) error { return runUploads(c, cfg) },
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
