//go:build gtk

package gtkhost

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/diamondburned/gotk4/pkg/gdk/v3"
	"github.com/diamondburned/gotk4/pkg/gio/v2"
	"github.com/diamondburned/gotk4/pkg/glib/v2"
	"github.com/diamondburned/gotk4/pkg/gtk/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/host/headless"
)

const DefaultAppID = "co.hexi.loop-client"

type Callbacks struct {
	// Ready, Activate and WindowAllClosed are run on their own goroutine, never on the GTK main loop.
	Ready           func()
	Activate        func()
	WindowAllClosed func()
	// WillQuit is run once the main loop has finished, before Run returns.
	WillQuit func()
}

// App is a GTK application acting as the host: it creates windows and owns application-wide shortcuts. Downloads
// are fetched by a headless.Downloader, since plain GTK windows have no web content of their own.
type App struct {
	app        *gtk.Application
	downloader *headless.Downloader
	log        *zap.SugaredLogger
	running    atomic.Bool

	mu          sync.Mutex
	windows     map[*Window]struct{}
	actions     []string
	onAllClosed func()
}

var (
	_ host.WindowFactory = &App{}
	_ host.Shortcuts     = &App{}
)

func New(appID string, downloader *headless.Downloader, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.L()
	}
	return &App{
		app:        gtk.NewApplication(appID, gio.ApplicationFlagsNone),
		downloader: downloader,
		log:        logger.Named("gtk").Sugar(),
		windows:    make(map[*Window]struct{}),
	}
}

// Run runs the GTK main loop until the application quits, returning its exit status.
func (a *App) Run(args []string, callbacks Callbacks) int {
	started := false
	a.app.ConnectActivate(func() {
		if !started {
			started = true
			a.app.Hold()
			if callbacks.Ready != nil {
				go callbacks.Ready()
			}
			return
		}
		if callbacks.Activate != nil {
			go callbacks.Activate()
		}
	})
	a.mu.Lock()
	a.onAllClosed = func() {
		if callbacks.WindowAllClosed != nil {
			go callbacks.WindowAllClosed()
		}
	}
	a.mu.Unlock()

	a.running.Store(true)
	status := a.app.Run(args)
	a.running.Store(false)
	if callbacks.WillQuit != nil {
		callbacks.WillQuit()
	}
	return status
}

// Quit ends the main loop; safe to call from any goroutine.
func (a *App) Quit() {
	a.invoke(func() {
		a.app.Release()
		a.app.Quit()
	})
}

// invoke runs f on the GTK main loop and waits for it to finish. Once the loop has stopped, f runs directly.
func (a *App) invoke(f func()) {
	if !a.running.Load() {
		f()
		return
	}
	done := make(chan struct{})
	glib.IdleAdd(func() {
		defer close(done)
		f()
	})
	<-done
}

func (a *App) CreateWindow(opts host.WindowOptions) (host.Window, error) {
	var w *Window
	var err error
	a.invoke(func() {
		w, err = a.newWindow(opts)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (a *App) Register(accelerator string, callback func()) error {
	accel, err := ParseAccelerator(accelerator)
	if err != nil {
		return err
	}
	name := actionName(accelerator)
	a.mu.Lock()
	for _, existing := range a.actions {
		if existing == name {
			a.mu.Unlock()
			return fmt.Errorf("shortcut %s already registered", accelerator)
		}
	}
	a.actions = append(a.actions, name)
	a.mu.Unlock()

	a.invoke(func() {
		action := gio.NewSimpleAction(name, nil)
		action.ConnectActivate(func(*glib.Variant) { go callback() })
		a.app.AddAction(action)
		a.app.SetAccelsForAction("app."+name, []string{accel})
	})
	return nil
}

func (a *App) UnregisterAll() {
	a.mu.Lock()
	actions := a.actions
	a.actions = nil
	a.mu.Unlock()
	a.invoke(func() {
		for _, name := range actions {
			a.app.SetAccelsForAction("app."+name, nil)
			a.app.RemoveAction(name)
		}
	})
}

func (a *App) windowDestroyed(w *Window) {
	a.mu.Lock()
	delete(a.windows, w)
	remaining := len(a.windows)
	onAllClosed := a.onAllClosed
	a.mu.Unlock()
	if remaining == 0 && onAllClosed != nil {
		onAllClosed()
	}
}

// Beep sounds the display bell.
func (a *App) Beep() {
	a.invoke(gdk.Beep)
}
