// Package update runs the two kinds of update check: a best-effort one at startup, whose failures are only logged,
// and an on-demand one whose failures are returned to the caller.
package update

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/async"
	"github.com/alanbriolat/loop-client/generic"
	"github.com/alanbriolat/loop-client/internal/host"
)

type ErrorKind string

const (
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindNoMetadata      ErrorKind = "no_metadata"
	ErrorKindFeedUnreachable ErrorKind = "feed_unreachable"
	ErrorKindUnknown         ErrorKind = "unknown"
)

type CheckError struct {
	Kind ErrorKind
	Err  error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("update check failed (%s): %v", e.Kind, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

func classify(err error) ErrorKind {
	var netErr net.Error
	switch {
	case errors.Is(err, host.ErrNoUpdateMetadata):
		return ErrorKindNoMetadata
	case errors.Is(err, host.ErrFeedUnreachable):
		return ErrorKindFeedUnreachable
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindNetwork
	default:
		return ErrorKindUnknown
	}
}

// Result of an on-demand check. Info is nil when the running version is the latest.
type Result struct {
	Info *host.UpdateInfo
}

func (r Result) Available() bool {
	return r.Info != nil
}

type Coordinator struct {
	client  host.UpdateClient
	log     *zap.SugaredLogger
	startup sync.Once
}

func NewCoordinator(client host.UpdateClient, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.L()
	}
	return &Coordinator{
		client: client,
		log:    logger.Named("update").Sugar(),
	}
}

// CheckOnStartup checks for updates and lets the client notify the user. Only the first call on a Coordinator does
// anything, and no failure reaches the caller.
func (c *Coordinator) CheckOnStartup(ctx context.Context) {
	c.startup.Do(func() {
		err := c.call(func() error {
			return c.client.CheckForUpdatesAndNotify(ctx)
		})
		if err != nil {
			c.log.Warnw("startup update check failed", "kind", classify(err), "error", err)
			return
		}
		c.log.Debug("startup update check finished")
	})
}

// CheckOnDemand checks for updates, returning any failure as a *CheckError.
func (c *Coordinator) CheckOnDemand(ctx context.Context) (Result, error) {
	var info *host.UpdateInfo
	err := c.call(func() (err error) {
		info, err = c.client.CheckForUpdates(ctx)
		return err
	})
	if err != nil {
		return Result{}, &CheckError{Kind: classify(err), Err: err}
	}
	if info != nil {
		c.log.Infow("update available", "version", info.Version)
	}
	return Result{Info: info}, nil
}

func (c *Coordinator) CheckOnDemandAsync(ctx context.Context) <-chan generic.Result[Result] {
	return async.RunResult(func() (Result, error) {
		return c.CheckOnDemand(ctx)
	})
}

// call turns a panic in the update client into an error.
func (c *Coordinator) call(f func() error) (err error) {
	if c.client == nil {
		return errors.New("no update client")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update client panicked: %v", r)
		}
	}()
	return f()
}
