package headless

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/internal/host"
)

// WindowFactory creates windows with no UI, which all share one Downloader as their download source.
type WindowFactory struct {
	Downloader *Downloader
	Logger     *zap.Logger
}

var _ host.WindowFactory = &WindowFactory{}

func (f *WindowFactory) CreateWindow(opts host.WindowOptions) (host.Window, error) {
	if f.Downloader == nil {
		return nil, fmt.Errorf("no downloader for window %q", opts.Title)
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &Window{
		opts:       opts,
		downloader: f.Downloader,
		log:        logger.Named("window").Sugar(),
		shown:      !opts.Hidden,
	}, nil
}

// Window has no content, so it is ready to show as soon as anyone asks.
type Window struct {
	opts       host.WindowOptions
	downloader *Downloader
	log        *zap.SugaredLogger

	mu       sync.Mutex
	shown    bool
	closed   bool
	menu     []host.MenuItem
	onClosed []func()
}

func (w *Window) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shown = true
	w.log.Debugf("showing %q (%dx%d)", w.opts.Title, w.opts.Width, w.opts.Height)
}

func (w *Window) IsShown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shown
}

func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	callbacks := w.onClosed
	w.onClosed = nil
	w.mu.Unlock()
	for _, f := range callbacks {
		f()
	}
}

func (w *Window) OnReadyToShow(f func()) {
	go f()
}

func (w *Window) OnClosed(f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClosed = append(w.onClosed, f)
}

func (w *Window) SetContextMenu(items []host.MenuItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.menu = append([]host.MenuItem(nil), items...)
}

// MenuItem returns the context menu entry with the given role.
func (w *Window) MenuItem(role host.MenuRole) (host.MenuItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, item := range w.menu {
		if item.Role == role {
			return item, true
		}
	}
	return host.MenuItem{}, false
}

func (w *Window) OpenDevTools() {
	w.log.Info("no developer tools without a desktop host")
}

func (w *Window) Downloads() host.DownloadSource {
	return w.downloader
}

// Shortcuts keeps registered accelerators so they can be triggered by other input, e.g. signals.
type Shortcuts struct {
	mu         sync.Mutex
	registered map[string]func()
}

var _ host.Shortcuts = &Shortcuts{}

func (s *Shortcuts) Register(accelerator string, callback func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered == nil {
		s.registered = make(map[string]func())
	}
	if _, ok := s.registered[accelerator]; ok {
		return fmt.Errorf("shortcut %s already registered", accelerator)
	}
	s.registered[accelerator] = callback
	return nil
}

func (s *Shortcuts) UnregisterAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = nil
}

// Trigger runs the callback for accelerator, returning false if none is registered.
func (s *Shortcuts) Trigger(accelerator string) bool {
	s.mu.Lock()
	callback, ok := s.registered[accelerator]
	s.mu.Unlock()
	if ok {
		callback()
	}
	return ok
}
