package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/async"
	"github.com/alanbriolat/loop-client/internal/config"
	"github.com/alanbriolat/loop-client/internal/lifecycle"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = ""

func newLogger(level string, json bool) (*zap.Logger, error) {
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("downloads-root") {
		cfg.Downloads.RootDir = c.String("downloads-root")
	}
	if c.IsSet("feed-url") {
		cfg.Update.FeedURL = c.String("feed-url")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.Bool("log-json") {
		cfg.Logging.Format = "json"
	}
	if version != "" {
		cfg.App.Version = version
	}
	return cfg, cfg.Validate()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:  "loop-client",
		Usage: "desktop client shell for Loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "downloads-root",
				Usage: "save downloads under `DIR`",
			},
			&cli.StringFlag{
				Name:  "feed-url",
				Usage: "check for updates at `URL`",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "minimum `LEVEL` to log (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "log as JSON",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "run without a desktop host, downloading the URLs given as arguments",
			},
			&cli.BoolFlag{
				Name:  "no-open",
				Usage: "don't open finished downloads",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "don't show progress bars",
			},
			&cli.BoolFlag{
				Name:  "check-updates",
				Usage: "check for updates, print the result and exit",
			},
			&cli.BoolFlag{
				Name:   lifecycle.RelaunchFlag[2:],
				Usage:  "set when the application restarts itself",
				Hidden: true,
			},
		},
		ArgsUsage: "[URL...]",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format == "json")
			if err != nil {
				return err
			}
			defer logger.Sync()
			zap.RedirectStdLog(logger)
			zap.ReplaceGlobals(logger)
			ctx := loop_client.WithLogger(ctx, logger)
			if c.Bool("relaunch") {
				logger.Info("relaunched")
			}

			env, err := newEnvironment(ctx, cfg, options{
				headless:   c.Bool("headless"),
				noOpen:     c.Bool("no-open"),
				noProgress: c.Bool("no-progress"),
				quit:       stop,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := env.Close(); err != nil {
					logger.Warn("error during cleanup", zap.Error(err))
				}
			}()

			switch {
			case c.Bool("check-updates"):
				return env.checkUpdates(ctx)
			case c.Bool("headless"):
				return env.runHeadless(ctx, c.Args().Slice())
			default:
				return env.runDesktop(ctx, os.Args)
			}
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		err = <-result
	}
	if err != nil {
		log.Fatal(err)
	}
}
