package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/config"
	"github.com/alanbriolat/loop-client/internal/download"
	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/host/headless"
	"github.com/alanbriolat/loop-client/internal/lifecycle"
	"github.com/alanbriolat/loop-client/internal/sync_"
	"github.com/alanbriolat/loop-client/internal/update"
	"github.com/alanbriolat/loop-client/internal/updater"
)

type options struct {
	headless   bool
	noOpen     bool
	noProgress bool
	quit       func()
}

// environment holds everything both the desktop and headless modes share.
type environment struct {
	config     *config.Config
	options    options
	ctx        context.Context
	cancel     context.CancelFunc
	log        *zap.SugaredLogger
	platform   loop_client.Platform
	resolver   loop_client.Resolver
	downloader *headless.Downloader
	shell      *headless.Shell
	process    *headless.Process
	tracker    *download.Tracker
	updater    *updater.Client
	updates    *update.Coordinator
	quit       *sync_.Mutexed[func()]
	logging    sync.WaitGroup
}

func newEnvironment(ctx context.Context, cfg *config.Config, opts options) (*environment, error) {
	logger := loop_client.Logger(ctx)
	ctx, cancel := context.WithCancel(ctx)
	env := &environment{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		options:  opts,
		log:      logger.Sugar(),
		platform: cfg.App.GetPlatform(),
		resolver: cfg.Downloads.Resolver(),
		quit:     sync_.NewMutexed(opts.quit),
	}
	env.downloader = headless.NewDownloader(headless.DownloaderConfig{
		Retries: cfg.Downloads.Retries,
		Resumes: cfg.Downloads.Resumes,
		Logger:  logger,
	})
	env.shell = headless.NewShell(headless.ShellConfig{
		Platform:    env.platform,
		DisableOpen: opts.noOpen,
		Logger:      logger,
	})
	env.process = headless.NewProcess(headless.ProcessConfig{
		Quit: func() {
			if quit := env.quit.Get(); quit != nil {
				quit()
			}
		},
		Logger: logger,
	})
	env.tracker = download.NewTracker(download.Config{
		Resolver:            env.resolver,
		Platform:            env.platform,
		Shell:               env.shell,
		AvoidDiskCollisions: cfg.Downloads.AvoidDiskCollisions,
		Logger:              logger,
	})

	events, err := env.tracker.Subscribe()
	if err != nil {
		return nil, err
	}
	env.logging.Add(1)
	go func() {
		defer env.logging.Done()
		download.LogEvents(events, logger.Named("events"))
	}()

	if cfg.Update.FeedURL != "" {
		env.updater, err = updater.New(updater.Config{
			FeedURL:        cfg.Update.FeedURL,
			CurrentVersion: cfg.App.Version,
			Platform:       env.platform,
			CachePath:      cfg.Update.CachePath,
			MinInterval:    cfg.Update.GetMinInterval(),
			Timeout:        cfg.Update.GetTimeout(),
			Retries:        cfg.Update.Retries,
			Notify:         env.notifyUpdate,
			Logger:         logger,
		})
		if err != nil {
			env.Close()
			return nil, err
		}
		if cfg.Update.CheckOnStartup {
			env.updates = update.NewCoordinator(env.updater, logger)
		}
	}
	return env, nil
}

func (env *environment) notifyUpdate(info host.UpdateInfo) {
	env.log.Infof("%s %s is available, download it from %s", env.config.App.Name, info.Version, info.Path)
}

func (env *environment) newController(windows host.WindowFactory, shortcuts host.Shortcuts) *lifecycle.Controller {
	return lifecycle.New(lifecycle.Config{
		Platform:     env.platform,
		Window:       env.config.Window.Options(),
		DownloadsDir: env.resolver.Dir(env.platform),
		StayResident: env.config.Lifecycle.StayResident,
	}, lifecycle.Deps{
		Windows:   windows,
		Shortcuts: shortcuts,
		Process:   env.process,
		Shell:     env.shell,
		Tracker:   env.tracker,
		Updates:   env.updates,
		Logger:    zap.L(),
	})
}

// checkUpdates runs an on-demand update check and reports the result.
func (env *environment) checkUpdates(ctx context.Context) error {
	if env.updater == nil {
		return errors.New("no update feed configured")
	}
	coordinator := update.NewCoordinator(env.updater, zap.L())
	result, err := (<-coordinator.CheckOnDemandAsync(ctx)).Parts()
	if err != nil {
		var checkErr *update.CheckError
		if errors.As(err, &checkErr) && checkErr.Kind == update.ErrorKindNoMetadata {
			return fmt.Errorf("the update feed has no release for this platform: %w", err)
		}
		return err
	}
	if result.Available() {
		fmt.Printf("%s is available (running %s)\n", result.Info.Version, env.config.App.Version)
	} else {
		fmt.Printf("%s is up to date\n", env.config.App.Version)
	}
	return nil
}

func (env *environment) Close() error {
	var result *multierror.Error
	env.cancel()
	env.downloader.Wait()
	env.tracker.Close()
	env.logging.Wait()
	if env.updater != nil {
		result = multierror.Append(result, env.updater.Close())
	}
	return result.ErrorOrNil()
}
