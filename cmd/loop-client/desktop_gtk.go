//go:build gtk

package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/internal/host/gtkhost"
)

// runDesktop runs the GTK main loop until the application quits.
func (env *environment) runDesktop(ctx context.Context, args []string) error {
	app := gtkhost.New(gtkhost.DefaultAppID, env.downloader, zap.L())
	env.quit.Swap(app.Quit)
	go func() {
		<-ctx.Done()
		app.Quit()
	}()

	controller := env.newController(app, app)
	defer controller.Close()
	status := app.Run(args[:1], gtkhost.Callbacks{
		Ready:           env.logged("ready", controller.Ready),
		Activate:        env.logged("activate", controller.Activate),
		WindowAllClosed: env.logged("window-all-closed", controller.WindowAllClosed),
		WillQuit:        env.logged("will-quit", controller.WillQuit),
	})
	if status != 0 {
		env.log.Warnf("GTK application exited with status %d", status)
	}
	return nil
}

func (env *environment) logged(event string, f func() error) func() {
	return func() {
		if err := f(); err != nil {
			env.log.Errorf("%s: %v", event, err)
		}
	}
}
