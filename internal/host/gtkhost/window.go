//go:build gtk

package gtkhost

import (
	"sync"

	"github.com/diamondburned/gotk4/pkg/gdk/v3"
	"github.com/diamondburned/gotk4/pkg/glib/v2"
	"github.com/diamondburned/gotk4/pkg/gtk/v3"

	"github.com/alanbriolat/loop-client/internal/host"
)

const rightMouseButton = 3

type Window struct {
	app    *App
	window *gtk.ApplicationWindow
	menu   *gtk.Menu

	mu       sync.Mutex
	onReady  []func()
	onClosed []func()
	realized bool
}

var _ host.Window = &Window{}

// newWindow must be called on the main loop.
func (a *App) newWindow(opts host.WindowOptions) (*Window, error) {
	w := &Window{app: a, window: gtk.NewApplicationWindow(a.app)}
	w.window.SetTitle(opts.Title)
	w.window.SetDefaultSize(opts.Width, opts.Height)
	w.window.SetSizeRequest(opts.MinWidth, -1)
	w.window.SetDecorated(!opts.Frameless)
	if opts.IconPath != "" {
		if err := w.window.SetIconFromFile(opts.IconPath); err != nil {
			a.log.Warnf("failed to load window icon %s: %v", opts.IconPath, err)
		}
	}
	w.window.Add(gtk.NewLabel(opts.Title))

	w.window.ConnectButtonPressEvent(func(event *gdk.EventButton) bool {
		if event.Button() != rightMouseButton || w.menu == nil {
			return false
		}
		w.menu.PopupAtPointer(nil)
		return true
	})
	w.window.ConnectDestroy(func() {
		w.mu.Lock()
		callbacks := w.onClosed
		w.onClosed = nil
		w.mu.Unlock()
		for _, f := range callbacks {
			f()
		}
		a.windowDestroyed(w)
	})

	a.mu.Lock()
	a.windows[w] = struct{}{}
	a.mu.Unlock()

	// A plain GTK window has nothing to load, so it is ready once the main loop is idle again
	glib.IdleAdd(func() {
		w.mu.Lock()
		w.realized = true
		callbacks := w.onReady
		w.onReady = nil
		w.mu.Unlock()
		for _, f := range callbacks {
			f()
		}
	})

	if !opts.Hidden {
		w.window.ShowAll()
	}
	return w, nil
}

func (w *Window) Show() {
	w.app.invoke(w.window.ShowAll)
}

func (w *Window) Close() {
	w.app.invoke(w.window.Close)
}

func (w *Window) OnReadyToShow(f func()) {
	w.mu.Lock()
	if w.realized {
		w.mu.Unlock()
		f()
		return
	}
	w.onReady = append(w.onReady, f)
	w.mu.Unlock()
}

func (w *Window) OnClosed(f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClosed = append(w.onClosed, f)
}

func (w *Window) SetContextMenu(items []host.MenuItem) {
	w.app.invoke(func() {
		menu := gtk.NewMenu()
		for _, item := range items {
			menu.Append(w.menuItem(item))
		}
		menu.ShowAll()
		w.menu = menu
	})
}

func (w *Window) menuItem(item host.MenuItem) gtk.Widgetter {
	if item.Role == host.MenuRoleSeparator {
		return gtk.NewSeparatorMenuItem()
	}
	label := item.Label
	if label == "" {
		label = defaultLabels[item.Role]
	}
	menuItem := gtk.NewMenuItemWithLabel(label)
	click := item.Click
	if click == nil {
		click = w.defaultAction(item.Role)
	}
	if click != nil {
		menuItem.ConnectActivate(click)
	} else {
		menuItem.SetSensitive(false)
	}
	return menuItem
}

var defaultLabels = map[host.MenuRole]string{
	host.MenuRoleCut:       "Cut",
	host.MenuRoleCopy:      "Copy",
	host.MenuRolePaste:     "Paste",
	host.MenuRoleSelectAll: "Select All",
	host.MenuRoleReload:    "Reload",
	host.MenuRoleClose:     "Close",
}

// defaultAction returns the built-in behaviour for a role, or nil if there isn't one.
func (w *Window) defaultAction(role host.MenuRole) func() {
	switch role {
	case host.MenuRoleClose:
		return w.window.Close
	default:
		// There is no editable content to cut, copy or paste in
		return nil
	}
}

func (w *Window) OpenDevTools() {
	w.app.invoke(func() {
		gtk.WindowSetInteractiveDebugging(true)
	})
}

func (w *Window) Downloads() host.DownloadSource {
	return w.app.downloader
}
