//go:build !gtk

package main

import (
	"context"
	"errors"
)

var errNoDesktop = errors.New("built without desktop support, rebuild with -tags gtk or pass --headless")

func (env *environment) runDesktop(ctx context.Context, args []string) error {
	return errNoDesktop
}
