// Package headless implements the host interfaces without a desktop environment: downloads are fetched directly over
// HTTP, windows have no UI, and files are opened with the platform's opener command.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/pubsub"
)

var (
	ErrNoSavePath = errors.New("no handler assigned a save path")
)

const defaultFilename = "download"

type DownloaderConfig struct {
	// Retries of a single request, before the download is reported as interrupted.
	Retries int
	// Resumes is how many times an interrupted download is continued before giving up.
	Resumes int
	// ResumeDelay is the wait before continuing an interrupted download.
	ResumeDelay time.Duration
	// ProgressInterval limits how often progress events are emitted.
	ProgressInterval time.Duration
	HTTPClient       *http.Client
	Logger           *zap.Logger
}

// Downloader is a DownloadSource for URLs requested directly, rather than by window content.
type Downloader struct {
	config   DownloaderConfig
	client   *retryablehttp.Client
	log      *zap.SugaredLogger
	mu       sync.Mutex
	handlers map[int]host.WillDownloadHandler
	next     int
	running  sync.WaitGroup
}

var _ host.DownloadSource = &Downloader{}

func NewDownloader(config DownloaderConfig) *Downloader {
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	if config.ProgressInterval == 0 {
		config.ProgressInterval = 100 * time.Millisecond
	}
	if config.ResumeDelay == 0 {
		config.ResumeDelay = time.Second
	}
	log := config.Logger.Named("downloader").Sugar()
	client := retryablehttp.NewClient()
	client.RetryMax = config.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = retryLogger{log}
	if config.HTTPClient != nil {
		client.HTTPClient = config.HTTPClient
	}
	return &Downloader{
		config:   config,
		client:   client,
		log:      log,
		handlers: make(map[int]host.WillDownloadHandler),
	}
}

func (d *Downloader) OnWillDownload(h host.WillDownloadHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.handlers[id] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers, id)
	}
}

// Download reports a new item for rawURL to every handler, then transfers it in the background. The transfer stops
// when ctx is cancelled, and the item finishes as cancelled.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*Item, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid download URL %q: unsupported scheme", rawURL)
	}
	item := newItem(uuid.NewString(), rawURL, filenameFromURL(u))
	item.log = d.log.With("download_id", item.id)

	d.mu.Lock()
	handlers := make([]host.WillDownloadHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()
	for _, h := range handlers {
		h(item)
	}
	if item.SavePath() == "" {
		item.events.Close()
		return nil, fmt.Errorf("%w for %s", ErrNoSavePath, rawURL)
	}

	ctx, item.cancel = context.WithCancel(ctx)
	d.running.Add(1)
	go func() {
		defer d.running.Done()
		d.run(ctx, item)
	}()
	return item, nil
}

// Wait blocks until every transfer has finished.
func (d *Downloader) Wait() {
	d.running.Wait()
}

func filenameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return defaultFilename
	}
	return name
}

func (d *Downloader) run(ctx context.Context, item *Item) {
	defer item.events.Close()
	defer item.cancel()
	for resumes := 0; ; resumes++ {
		err := d.transfer(ctx, item)
		if err == nil {
			item.log.Infof("finished download of %s", item.url)
			item.emit(host.ItemDone, host.ItemCompleted)
			return
		}
		if ctx.Err() != nil {
			item.emit(host.ItemDone, host.ItemCancelled)
			return
		}
		item.log.Warnf("download interrupted: %v", err)
		item.emit(host.ItemUpdated, host.ItemInterrupted)
		if resumes >= d.config.Resumes {
			item.emit(host.ItemDone, host.ItemInterrupted)
			return
		}
		select {
		case <-time.After(d.config.ResumeDelay):
		case <-ctx.Done():
			item.emit(host.ItemDone, host.ItemCancelled)
			return
		}
	}
}

// transfer fetches the rest of the item, continuing from the bytes already received if the server allows it.
func (d *Downloader) transfer(ctx context.Context, item *Item) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, item.url, nil)
	if err != nil {
		return err
	}
	offset := item.ReceivedBytes()
	if offset > 0 && item.CanResume() {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	} else {
		offset = 0
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// Starting over, either by choice or because the server ignored the range
		flags |= os.O_TRUNC
		offset = 0
	default:
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}

	var total int64
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}
	item.started(offset, total, resp.Header.Get("Accept-Ranges") == "bytes")

	savePath := item.SavePath()
	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(savePath, flags, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	lastEmit := time.Now()
	for {
		if err := item.waitWhilePaused(ctx); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return err
			}
			item.add(int64(n))
			if time.Since(lastEmit) >= d.config.ProgressInterval {
				item.emit(host.ItemUpdated, host.ItemProgressing)
				lastEmit = time.Now()
			}
		}
		if readErr == io.EOF {
			if total > 0 && item.ReceivedBytes() < total {
				return io.ErrUnexpectedEOF
			}
			return nil
		} else if readErr != nil {
			return readErr
		}
	}
}

// Item is a download fetched by the Downloader.
type Item struct {
	id       string
	url      string
	filename string
	log      *zap.SugaredLogger
	events   pubsub.Publisher[host.ItemEvent]
	cancel   context.CancelFunc

	mu        sync.Mutex
	savePath  string
	received  int64
	total     int64
	paused    bool
	canResume bool
	resumed   chan struct{}
}

var _ host.DownloadItem = &Item{}

func newItem(id, rawURL, filename string) *Item {
	return &Item{
		id:       id,
		url:      rawURL,
		filename: filename,
		events:   pubsub.NewPublisher[host.ItemEvent](),
		cancel:   func() {},
		resumed:  make(chan struct{}),
	}
}

func (i *Item) ID() string       { return i.id }
func (i *Item) URL() string      { return i.url }
func (i *Item) Filename() string { return i.filename }

func (i *Item) SetSavePath(path string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.savePath = path
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
	return i.events.Subscribe()
}

// Pause stops reading the response until Resume is called.
func (i *Item) Pause() {
	i.mu.Lock()
	changed := !i.paused
	i.paused = true
	i.mu.Unlock()
	if changed {
		i.emit(host.ItemUpdated, host.ItemProgressing)
	}
}

func (i *Item) Resume() {
	i.mu.Lock()
	changed := i.paused
	if changed {
		i.paused = false
		close(i.resumed)
		i.resumed = make(chan struct{})
	}
	i.mu.Unlock()
	if changed {
		i.emit(host.ItemUpdated, host.ItemProgressing)
	}
}

// Cancel stops the transfer; the item finishes as cancelled.
func (i *Item) Cancel() {
	i.cancel()
}

func (i *Item) waitWhilePaused(ctx context.Context) error {
	for {
		i.mu.Lock()
		paused, resumed := i.paused, i.resumed
		i.mu.Unlock()
		if !paused {
			return ctx.Err()
		}
		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (i *Item) started(offset, total int64, canResume bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.received = offset
	i.total = total
	i.canResume = canResume
}

func (i *Item) add(n int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.received += n
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

// retryLogger adapts zap to retryablehttp's LeveledLogger.
type retryLogger struct {
	log *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) { l.log.Errorw(msg, keysAndValues...) }
func (l retryLogger) Info(msg string, keysAndValues ...interface{})  { l.log.Debugw(msg, keysAndValues...) }
func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) { l.log.Debugw(msg, keysAndValues...) }
func (l retryLogger) Warn(msg string, keysAndValues ...interface{})  { l.log.Warnw(msg, keysAndValues...) }
