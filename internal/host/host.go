// Package host declares what the desktop shell is expected to provide: windows, download interception, update
// checks, global shortcuts, process control and the OS shell. The core only talks to the host through these.
package host

import (
	"context"
	"errors"

	"github.com/alanbriolat/loop-client/internal/pubsub"
)

type WindowOptions struct {
	Title     string
	Width     int
	Height    int
	MinWidth  int
	Frameless bool
	IconPath  string
	// Hidden windows are created without being shown; the owner calls Show once content is ready.
	Hidden bool
}

type WindowFactory interface {
	CreateWindow(opts WindowOptions) (Window, error)
}

// MenuRole names a context menu entry; the host supplies labels and standard behaviour for the editing roles.
type MenuRole string

const (
	MenuRoleCut       MenuRole = "cut"
	MenuRoleCopy      MenuRole = "copy"
	MenuRolePaste     MenuRole = "paste"
	MenuRoleSelectAll MenuRole = "selectAll"
	MenuRoleSeparator MenuRole = "separator"
	MenuRoleReload    MenuRole = "reload"
	MenuRoleClose     MenuRole = "close"
)

type MenuItem struct {
	Role  MenuRole
	Label string
	// Click overrides the host's default behaviour for the role, if set.
	Click func()
}

type Window interface {
	Show()
	Close()
	// OnReadyToShow registers f to be called once, when the window content has finished loading.
	OnReadyToShow(f func())
	// OnClosed registers f to be called once, after the window has been destroyed.
	OnClosed(f func())
	SetContextMenu(items []MenuItem)
	OpenDevTools()
	// Downloads is the download source for content loaded in this window.
	Downloads() DownloadSource
}

// WillDownloadHandler is called synchronously when content starts a download, before any bytes are transferred. It
// must call item.SetSavePath before returning, or the host will prompt the user for a location.
type WillDownloadHandler func(item DownloadItem)

type DownloadSource interface {
	// OnWillDownload registers a handler, returning a function that unregisters it.
	OnWillDownload(h WillDownloadHandler) (unregister func())
}

// ItemEventKind distinguishes progress updates from the single final event of a download.
type ItemEventKind string

const (
	ItemUpdated ItemEventKind = "updated"
	ItemDone    ItemEventKind = "done"
)

// ItemState is the state reported alongside an item event.
type ItemState string

const (
	ItemProgressing ItemState = "progressing"
	ItemInterrupted ItemState = "interrupted"
	ItemCompleted   ItemState = "completed"
	ItemCancelled   ItemState = "cancelled"
)

// ItemEvent carries the item's counters as they were when the event was emitted, so that consumers processing events
// later still see a consistent view.
type ItemEvent struct {
	Kind          ItemEventKind
	State         ItemState
	ReceivedBytes int64
	TotalBytes    int64
	Paused        bool
	CanResume     bool
}

type DownloadItem interface {
	ID() string
	Filename() string
	SetSavePath(path string)
	SavePath() string
	ReceivedBytes() int64
	// TotalBytes is 0 if the size is unknown.
	TotalBytes() int64
	IsPaused() bool
	CanResume() bool
	// Subscribe returns this item's event stream; the stream ends after the ItemDone event.
	Subscribe() (pubsub.ReceiverCloser[ItemEvent], error)
}

var (
	// ErrNoUpdateMetadata means the feed was reached but has no usable release description.
	ErrNoUpdateMetadata = errors.New("no update metadata")
	// ErrFeedUnreachable means the feed answered, but not with a success status.
	ErrFeedUnreachable = errors.New("update feed unreachable")
)

type UpdateInfo struct {
	Version     string
	ReleaseDate string
	Path        string
}

type UpdateClient interface {
	// CheckForUpdatesAndNotify runs a check and hands any available update to the platform updater flow.
	CheckForUpdatesAndNotify(ctx context.Context) error
	// CheckForUpdates returns the latest available version, or nil if the running version is current.
	CheckForUpdates(ctx context.Context) (*UpdateInfo, error)
}

type Shortcuts interface {
	Register(accelerator string, callback func()) error
	UnregisterAll()
}

type Process interface {
	Args() []string
	// Relaunch schedules a new instance with args (not including the executable) once this one exits.
	Relaunch(args []string) error
	Exit(code int)
	Quit()
}

type Shell interface {
	Beep()
	// OpenPath opens a file or directory with the default handler, without waiting for it.
	OpenPath(path string) error
}
