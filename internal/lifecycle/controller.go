// Package lifecycle owns the application window and reacts to the host's application events: startup, activation,
// all windows closing and quitting.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/download"
	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/lpc"
	"github.com/alanbriolat/loop-client/internal/update"
)

var (
	ErrControllerClosed = errors.New("lifecycle controller closed")
)

const (
	AcceleratorDevTools      = "CommandOrControl+Shift+T"
	AcceleratorOpenDownloads = "CommandOrControl+D"
	// RelaunchFlag is appended to the arguments of a relaunched instance.
	RelaunchFlag = "--relaunch"
)

type WindowState int

const (
	NoWindow WindowState = iota
	Creating
	Visible
)

func (s WindowState) String() string {
	switch s {
	case NoWindow:
		return "no_window"
	case Creating:
		return "creating"
	case Visible:
		return "visible"
	default:
		return fmt.Sprintf("WindowState(%d)", int(s))
	}
}

var DefaultWindowOptions = host.WindowOptions{
	Title:     "Loop",
	Width:     1024,
	Height:    650,
	MinWidth:  960,
	Frameless: true,
}

type Config struct {
	Platform loop_client.Platform
	Window   host.WindowOptions
	// DownloadsDir is opened by the open-downloads shortcut.
	DownloadsDir string
	// StayResident keeps the application running with no windows on darwin, as is conventional there. Ignored on
	// other platforms.
	StayResident bool
}

type Deps struct {
	Windows   host.WindowFactory
	Shortcuts host.Shortcuts
	Process   host.Process
	Shell     host.Shell
	Tracker   *download.Tracker
	Updates   *update.Coordinator
	Logger    *zap.Logger
}

type commandKind int

const (
	commandReady commandKind = iota
	commandActivate
	commandContentReady
	commandWindowClosed
	commandCloseWindow
	commandWindowAllClosed
	commandWillQuit
	commandRelaunch
	commandOpenDownloads
	commandDevTools
	commandState
)

type request struct {
	kind   commandKind
	window host.Window
}

type command = lpc.Command[request, WindowState]

// Controller serialises every change to the window state through one goroutine.
type Controller struct {
	config    Config
	deps      Deps
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger
	commands  chan *command
	done      chan struct{}
	// Background work started by the controller, waited for by Close
	background sync.WaitGroup

	// Owned by the run goroutine
	state               WindowState
	window              host.Window
	detachDownloads     func()
	shortcutsRegistered bool
	quitting            bool
	cleanedUp           bool
}

func New(config Config, deps Deps) *Controller {
	if config.Platform == "" {
		config.Platform = loop_client.CurrentPlatform()
	}
	if config.Window == (host.WindowOptions{}) {
		config.Window = DefaultWindowOptions
	}
	if deps.Logger == nil {
		deps.Logger = zap.L()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:    config,
		deps:      deps,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       deps.Logger.Named("lifecycle").Sugar(),
		commands:  make(chan *command, 64),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

// Ready handles the host finishing its startup: the window is created and global shortcuts registered.
func (c *Controller) Ready() error {
	return c.call(commandReady, nil)
}

// Activate creates a window if there is none, e.g. when a dock icon is clicked.
func (c *Controller) Activate() error {
	return c.call(commandActivate, nil)
}

func (c *Controller) WindowAllClosed() error {
	return c.call(commandWindowAllClosed, nil)
}

// WillQuit releases global resources; the returned error aggregates every failed step.
func (c *Controller) WillQuit() error {
	return c.call(commandWillQuit, nil)
}

// Relaunch starts a new instance with the same arguments plus RelaunchFlag, then exits this one.
func (c *Controller) Relaunch() error {
	return c.call(commandRelaunch, nil)
}

func (c *Controller) OpenDownloads() error {
	return c.call(commandOpenDownloads, nil)
}

func (c *Controller) WindowState() WindowState {
	state, _ := c.wait(c.submit(request{kind: commandState}))
	return state
}

// Close stops the controller goroutine. The window, if any, is left to the host.
func (c *Controller) Close() {
	c.ctxCancel()
	<-c.done
	c.background.Wait()
}

func (c *Controller) call(kind commandKind, window host.Window) error {
	_, err := c.wait(c.submit(request{kind: kind, window: window}))
	return err
}

func (c *Controller) wait(cmd *command) (WindowState, error) {
	state, err := cmd.WaitContext(c.ctx)
	if errors.Is(err, context.Canceled) {
		return state, ErrControllerClosed
	}
	return state, err
}

func (c *Controller) submit(req request) *command {
	cmd := lpc.NewCommand[request, WindowState](req)
	if c.ctx.Err() != nil {
		_ = cmd.RespondError(ErrControllerClosed)
		return cmd
	}
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
		_ = cmd.RespondError(ErrControllerClosed)
	}
	return cmd
}

// notify queues a request from a host callback without waiting for it, since the callback may be running on the
// controller goroutine itself.
func (c *Controller) notify(kind commandKind, window host.Window) {
	cmd := lpc.NewCommand[request, WindowState](request{kind: kind, window: window})
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
	default:
		go func() {
			select {
			case c.commands <- cmd:
			case <-c.ctx.Done():
			}
		}()
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.drain()
			return
		case cmd := <-c.commands:
			err := c.handle(cmd.Arg())
			if err != nil {
				_ = cmd.RespondError(err)
			} else {
				_ = cmd.Respond(c.state)
			}
		}
	}
}

func (c *Controller) drain() {
	for {
		select {
		case cmd := <-c.commands:
			_ = cmd.RespondError(ErrControllerClosed)
		default:
			return
		}
	}
}

func (c *Controller) handle(req request) error {
	switch req.kind {
	case commandReady:
		c.registerShortcuts()
		if c.deps.Updates != nil {
			c.background.Add(1)
			go func() {
				defer c.background.Done()
				c.deps.Updates.CheckOnStartup(c.ctx)
			}()
		}
		return c.ensureWindow()
	case commandActivate:
		return c.ensureWindow()
	case commandContentReady:
		if req.window == c.window && c.state == Creating {
			c.window.Show()
			c.setState(Visible)
		}
	case commandWindowClosed:
		if req.window == c.window {
			if c.detachDownloads != nil {
				c.detachDownloads()
				c.detachDownloads = nil
			}
			c.window = nil
			c.setState(NoWindow)
		}
	case commandCloseWindow:
		if c.window != nil {
			c.window.Close()
		}
	case commandWindowAllClosed:
		c.windowAllClosed()
	case commandWillQuit:
		return c.willQuit()
	case commandRelaunch:
		return c.relaunch()
	case commandOpenDownloads:
		return c.openDownloads()
	case commandDevTools:
		if c.window != nil {
			c.window.OpenDevTools()
		}
	case commandState:
	}
	return nil
}

func (c *Controller) setState(state WindowState) {
	if state != c.state {
		c.log.Debugf("window state %s -> %s", c.state, state)
		c.state = state
	}
}

func (c *Controller) ensureWindow() error {
	if c.state != NoWindow || c.quitting {
		return nil
	}
	c.setState(Creating)
	opts := c.config.Window
	opts.Hidden = true
	window, err := c.deps.Windows.CreateWindow(opts)
	if err != nil {
		c.setState(NoWindow)
		return fmt.Errorf("failed to create window: %w", err)
	}
	c.window = window
	window.SetContextMenu(c.contextMenu())
	window.OnReadyToShow(func() { c.notify(commandContentReady, window) })
	window.OnClosed(func() { c.notify(commandWindowClosed, window) })
	if c.deps.Tracker != nil {
		c.detachDownloads = c.deps.Tracker.Attach(window.Downloads())
	}
	return nil
}

func (c *Controller) contextMenu() []host.MenuItem {
	return []host.MenuItem{
		{Role: host.MenuRoleCut},
		{Role: host.MenuRoleCopy},
		{Role: host.MenuRolePaste},
		{Role: host.MenuRoleSelectAll},
		{Role: host.MenuRoleSeparator},
		{Role: host.MenuRoleReload, Label: "Reload", Click: func() { c.notify(commandRelaunch, nil) }},
		{Role: host.MenuRoleSeparator},
		{Role: host.MenuRoleClose, Label: "Exit", Click: func() { c.notify(commandCloseWindow, nil) }},
	}
}

func (c *Controller) registerShortcuts() {
	if c.shortcutsRegistered || c.deps.Shortcuts == nil {
		return
	}
	c.shortcutsRegistered = true
	shortcuts := map[string]commandKind{
		AcceleratorDevTools:      commandDevTools,
		AcceleratorOpenDownloads: commandOpenDownloads,
	}
	for accelerator, kind := range shortcuts {
		kind := kind
		if err := c.deps.Shortcuts.Register(accelerator, func() { c.notify(kind, nil) }); err != nil {
			c.log.Warnf("failed to register shortcut %s: %v", accelerator, err)
		}
	}
}

func (c *Controller) windowAllClosed() {
	if c.config.Platform == loop_client.PlatformDarwin {
		if c.config.StayResident {
			c.log.Info("all windows closed, staying resident")
			return
		}
		c.log.Warn("all windows closed, quitting instead of staying resident")
	}
	c.quitting = true
	c.deps.Process.Quit()
}

// willQuit releases everything the process holds globally. Only the first call does anything.
func (c *Controller) willQuit() error {
	c.quitting = true
	if c.cleanedUp {
		return nil
	}
	c.cleanedUp = true
	var result *multierror.Error
	if c.deps.Shortcuts != nil {
		result = multierror.Append(result, step("unregister shortcuts", c.deps.Shortcuts.UnregisterAll))
	}
	if c.deps.Tracker != nil {
		result = multierror.Append(result, step("close download tracker", c.deps.Tracker.Close))
	}
	if err := result.ErrorOrNil(); err != nil {
		c.log.Errorf("error during shutdown: %v", err)
		return err
	}
	return nil
}

// step runs one shutdown step, reporting a panic as an error.
func step(name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", name, r)
		}
	}()
	f()
	return nil
}

func (c *Controller) relaunch() error {
	args := c.deps.Process.Args()
	if len(args) > 0 {
		args = args[1:]
	}
	args = append(append([]string(nil), args...), RelaunchFlag)
	if err := c.deps.Process.Relaunch(args); err != nil {
		return fmt.Errorf("failed to relaunch: %w", err)
	}
	c.log.Infof("relaunching with args %q", args)
	// Exit skips the host's will-quit, so shortcuts are released here; failures are already logged
	_ = c.willQuit()
	c.deps.Process.Exit(0)
	return nil
}

func (c *Controller) openDownloads() error {
	if c.deps.Shell == nil {
		return nil
	}
	if err := c.deps.Shell.OpenPath(c.config.DownloadsDir); err != nil {
		return fmt.Errorf("failed to open %s: %w", c.config.DownloadsDir, err)
	}
	return nil
}
