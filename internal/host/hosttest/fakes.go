// Package hosttest provides in-memory host implementations for tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/pubsub"
)

// Item is a download item driven by the test through Progress, Pause, Interrupt and Done.
type Item struct {
	mu        sync.Mutex
	id        string
	filename  string
	savePath  string
	received  int64
	total     int64
	paused    bool
	canResume bool
	events    pubsub.Publisher[host.ItemEvent]
	// SubscribeErr, if set, is returned by Subscribe.
	SubscribeErr error
	// OnSetSavePath, if set, is called by SetSavePath after the path is stored.
	OnSetSavePath func(path string)
}

var _ host.DownloadItem = &Item{}

func NewItem(id, filename string) *Item {
	return &Item{
		id:        id,
		filename:  filename,
		canResume: true,
		events:    pubsub.NewPublisher[host.ItemEvent](),
	}
}

func (i *Item) ID() string       { return i.id }
func (i *Item) Filename() string { return i.filename }

func (i *Item) SetSavePath(path string) {
	i.mu.Lock()
	i.savePath = path
	hook := i.OnSetSavePath
	i.mu.Unlock()
	if hook != nil {
		hook(path)
	}
}

func (i *Item) SavePath() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.savePath
}

func (i *Item) ReceivedBytes() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.received
}

func (i *Item) TotalBytes() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.total
}

func (i *Item) IsPaused() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paused
}

func (i *Item) CanResume() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.canResume
}

func (i *Item) Subscribe() (pubsub.ReceiverCloser[host.ItemEvent], error) {
	if i.SubscribeErr != nil {
		return nil, i.SubscribeErr
	}
	return i.events.Subscribe()
}

func (i *Item) SetTotal(total int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.total = total
}

// Progress sets the received byte count and emits a progressing update.
func (i *Item) Progress(received int64) {
	i.mu.Lock()
	i.received = received
	i.mu.Unlock()
	i.emit(host.ItemUpdated, host.ItemProgressing)
}

// Pause marks the item paused and emits a progressing update, as hosts do.
func (i *Item) Pause() {
	i.mu.Lock()
	i.paused = true
	i.mu.Unlock()
	i.emit(host.ItemUpdated, host.ItemProgressing)
}

func (i *Item) Resume() {
	i.mu.Lock()
	i.paused = false
	i.mu.Unlock()
	i.emit(host.ItemUpdated, host.ItemProgressing)
}

func (i *Item) Interrupt(canResume bool) {
	i.mu.Lock()
	i.canResume = canResume
	i.mu.Unlock()
	i.emit(host.ItemUpdated, host.ItemInterrupted)
}

func (i *Item) Done(state host.ItemState) {
	i.emit(host.ItemDone, state)
}

// Close ends the event stream without a done event.
func (i *Item) Close() {
	i.events.Close()
}

func (i *Item) emit(kind host.ItemEventKind, state host.ItemState) {
	i.mu.Lock()
	event := host.ItemEvent{
		Kind:          kind,
		State:         state,
		ReceivedBytes: i.received,
		TotalBytes:    i.total,
		Paused:        i.paused,
		CanResume:     i.canResume,
	}
	i.mu.Unlock()
	i.events.Send(event)
}

// Source is a DownloadSource that calls its handlers synchronously from Start.
type Source struct {
	mu       sync.Mutex
	handlers map[int]host.WillDownloadHandler
	next     int
}

var _ host.DownloadSource = &Source{}

func (s *Source) OnWillDownload(h host.WillDownloadHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]host.WillDownloadHandler)
	}
	id := s.next
	s.next++
	s.handlers[id] = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Start reports a new download to every handler, returning an error if none of them assigned a save path.
func (s *Source) Start(item host.DownloadItem) error {
	s.mu.Lock()
	handlers := make([]host.WillDownloadHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(item)
	}
	if item.SavePath() == "" {
		return errors.New("no save path assigned, host would prompt")
	}
	return nil
}

func (s *Source) HandlerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Shell records beeps and opened paths.
type Shell struct {
	mu      sync.Mutex
	beeps   int
	opened  []string
	OpenErr error
}

var _ host.Shell = &Shell{}

func (s *Shell) Beep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beeps++
}

func (s *Shell) OpenPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, path)
	return s.OpenErr
}

func (s *Shell) Beeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beeps
}

func (s *Shell) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// Shortcuts is an in-memory shortcut registry.
type Shortcuts struct {
	mu         sync.Mutex
	registered map[string]func()
	unregAll   int
}

var _ host.Shortcuts = &Shortcuts{}

func (s *Shortcuts) Register(accelerator string, callback func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered == nil {
		s.registered = make(map[string]func())
	}
	if _, ok := s.registered[accelerator]; ok {
		return fmt.Errorf("accelerator %q already registered", accelerator)
	}
	s.registered[accelerator] = callback
	return nil
}

func (s *Shortcuts) UnregisterAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = nil
	s.unregAll++
}

// Trigger runs the callback registered for accelerator, returning false if there is none.
func (s *Shortcuts) Trigger(accelerator string) bool {
	s.mu.Lock()
	callback, ok := s.registered[accelerator]
	s.mu.Unlock()
	if ok {
		callback()
	}
	return ok
}

func (s *Shortcuts) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.registered))
	for k := range s.registered {
		keys = append(keys, k)
	}
	return keys
}

func (s *Shortcuts) UnregisterAllCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregAll
}

// Process records relaunch, exit and quit requests instead of acting on them.
type Process struct {
	mu         sync.Mutex
	args       []string
	relaunches [][]string
	exits      []int
	quits      int
}

var _ host.Process = &Process{}

// NewProcess fakes a process started with args, where args[0] is the executable.
func NewProcess(args ...string) *Process {
	return &Process{args: args}
}

func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

func (p *Process) Relaunch(args []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.relaunches = append(p.relaunches, append([]string(nil), args...))
	return nil
}

func (p *Process) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exits = append(p.exits, code)
}

func (p *Process) Quit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quits++
}

func (p *Process) Relaunches() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.relaunches...)
}

func (p *Process) Exits() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.exits...)
}

func (p *Process) Quits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quits
}

// Window is a fake top-level window; tests call Ready and Destroy to simulate the host.
type Window struct {
	mu        sync.Mutex
	Options   host.WindowOptions
	shown     bool
	closed    bool
	devTools  int
	menu      []host.MenuItem
	onReady   []func()
	onClosed  []func()
	downloads *Source
}

var _ host.Window = &Window{}

func (w *Window) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shown = true
}

// Close destroys the window, firing its closed callbacks.
func (w *Window) Close() {
	w.Destroy()
}

func (w *Window) OnReadyToShow(f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReady = append(w.onReady, f)
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

func (w *Window) OpenDevTools() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.devTools++
}

func (w *Window) Downloads() host.DownloadSource {
	return w.DownloadSource()
}

func (w *Window) DownloadSource() *Source {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.downloads == nil {
		w.downloads = &Source{}
	}
	return w.downloads
}

// Ready simulates the content finishing loading.
func (w *Window) Ready() {
	w.mu.Lock()
	callbacks := w.onReady
	w.onReady = nil
	w.mu.Unlock()
	for _, f := range callbacks {
		f()
	}
}

// Destroy simulates the user closing the window; only the first call has any effect.
func (w *Window) Destroy() {
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

func (w *Window) IsShown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shown
}

func (w *Window) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Window) DevToolsOpened() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.devTools
}

func (w *Window) Menu() []host.MenuItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]host.MenuItem(nil), w.menu...)
}

// WindowFactory records every window it creates.
type WindowFactory struct {
	mu      sync.Mutex
	windows []*Window
	Err     error
	// Downloads, if set, is the download source shared by every window, as a host with one session would have.
	Downloads *Source
}

var _ host.WindowFactory = &WindowFactory{}

func (f *WindowFactory) CreateWindow(opts host.WindowOptions) (host.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	w := &Window{Options: opts, downloads: f.Downloads}
	f.windows = append(f.windows, w)
	return w, nil
}

func (f *WindowFactory) Windows() []*Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Window(nil), f.windows...)
}

// Last returns the most recently created window, or nil.
func (f *WindowFactory) Last() *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.windows) == 0 {
		return nil
	}
	return f.windows[len(f.windows)-1]
}

// UpdateClient returns canned results and counts calls.
type UpdateClient struct {
	mu          sync.Mutex
	Info        *host.UpdateInfo
	Err         error
	Panic       interface{}
	notifyCalls int
	checkCalls  int
}

var _ host.UpdateClient = &UpdateClient{}

func (c *UpdateClient) CheckForUpdatesAndNotify(ctx context.Context) error {
	c.mu.Lock()
	c.notifyCalls++
	err, p := c.Err, c.Panic
	c.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

func (c *UpdateClient) CheckForUpdates(ctx context.Context) (*host.UpdateInfo, error) {
	c.mu.Lock()
	c.checkCalls++
	info, err, p := c.Info, c.Err, c.Panic
	c.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return info, err
}

func (c *UpdateClient) NotifyCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifyCalls
}

func (c *UpdateClient) CheckCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkCalls
}
