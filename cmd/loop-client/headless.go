package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"

	"github.com/alanbriolat/loop-client/internal/download"
	"github.com/alanbriolat/loop-client/internal/host/headless"
	"github.com/alanbriolat/loop-client/internal/pubsub"
)

// runHeadless downloads each URL through the same tracker a desktop window would use, and waits for them all.
func (env *environment) runHeadless(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return errors.New("nothing to download, pass at least one URL")
	}

	shortcuts := &headless.Shortcuts{}
	controller := env.newController(&headless.WindowFactory{Downloader: env.downloader}, shortcuts)
	defer controller.Close()
	if err := controller.Ready(); err != nil {
		return err
	}

	events, err := env.tracker.Subscribe()
	if err != nil {
		return err
	}
	p := newProgress(!env.options.noProgress, len(urls))
	go p.run(events)

	var result *multierror.Error
	pending := make(map[string]string)
	for _, u := range urls {
		item, err := env.downloader.Download(env.ctx, u)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		pending[item.ID()] = u
	}

	for len(pending) > 0 {
		select {
		case session := <-p.removed:
			u, ok := pending[session.ID]
			if !ok {
				continue
			}
			delete(pending, session.ID)
			switch session.State {
			case download.StateCompleted:
				env.log.Infof("saved %s to %s", u, session.DestinationPath)
			case download.StateFailed:
				result = multierror.Append(result, fmt.Errorf("%s: %s", u, session.FailureReason))
			default:
				result = multierror.Append(result, fmt.Errorf("%s: left %s", u, session.State))
			}
		case <-ctx.Done():
			// Cancelling the downloads makes each one finish as failed
			env.cancel()
			ctx = context.Background()
		}
	}

	if err := controller.WillQuit(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// progress renders a bar per session and passes on finished sessions.
type progress struct {
	enabled bool
	mu      sync.Mutex
	bars    map[string]*progressbar.ProgressBar
	removed chan download.Session
}

func newProgress(enabled bool, expected int) *progress {
	return &progress{
		enabled: enabled,
		bars:    make(map[string]*progressbar.ProgressBar),
		removed: make(chan download.Session, expected),
	}
}

func (p *progress) run(events pubsub.Receiver[download.Event]) {
	for event := range events.Receive() {
		session := event.Session()
		switch event.(type) {
		case download.SessionAdded:
			p.add(session)
		case download.SessionUpdated:
			p.update(session)
		case download.SessionRemoved:
			p.finish(session)
			p.removed <- session
		}
	}
}

func (p *progress) add(session download.Session) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bar := progressbar.DefaultBytes(-1, session.SuggestedName)
	p.bars[session.ID] = bar
}

func (p *progress) update(session download.Session) {
	p.mu.Lock()
	bar := p.bars[session.ID]
	p.mu.Unlock()
	if bar == nil {
		return
	}
	if session.TotalBytes > 0 && bar.GetMax64() != session.TotalBytes {
		bar.ChangeMax64(session.TotalBytes)
	}
	_ = bar.Set64(session.ReceivedBytes)
	if session.State == download.StatePaused {
		bar.Describe(session.SuggestedName + " (paused)")
	} else {
		bar.Describe(session.SuggestedName)
	}
}

func (p *progress) finish(session download.Session) {
	p.mu.Lock()
	bar := p.bars[session.ID]
	delete(p.bars, session.ID)
	p.mu.Unlock()
	if bar == nil {
		return
	}
	if session.State == download.StateCompleted {
		_ = bar.Finish()
	} else {
		_ = bar.Clear()
	}
}
