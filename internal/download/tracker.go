// Package download tracks downloads started by window content, from the moment the host reports them until they
// complete, fail, or go quiet after an interruption.
package download

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/generic"
	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/pubsub"
	"github.com/alanbriolat/loop-client/internal/sync_"
)

var (
	ErrDuplicateSession = errors.New("download already tracked")
	ErrUnknownSession   = errors.New("unknown download")
	ErrTrackerClosed    = errors.New("tracker closed")
)

const reasonStreamEnded = "event stream ended"

type Config struct {
	Resolver loop_client.Resolver
	Platform loop_client.Platform
	// Shell receives the completion beep and the request to open the finished file.
	Shell host.Shell
	// AvoidDiskCollisions also renames downloads whose resolved path already exists on disk. Paths of live sessions
	// are always kept distinct.
	AvoidDiskCollisions bool
	// Exists reports whether a path is already in use on disk; defaults to os.Stat.
	Exists func(path string) bool
	Logger *zap.Logger
	Now    func() time.Time
}

type sessionsByID = map[string]*trackedSession

type trackedSession struct {
	// path is fixed at creation, so it can be read without holding mu.
	path    string
	mu      sync.Mutex
	session Session
	events  pubsub.ReceiverCloser[host.ItemEvent]
	log     *zap.SugaredLogger
	done    chan struct{}
	// Final snapshot, valid once done is closed.
	final Session
}

func (s *trackedSession) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

type Tracker struct {
	config   Config
	log      *zap.Logger
	sessions *sync_.RWMutexed[sessionsByID]
	events   pubsub.Publisher[Event]
	detach   *sync_.Mutexed[[]func()]
	closing  sync_.Event
	running  sync.WaitGroup
	closeMu  sync.Mutex
}

func NewTracker(config Config) *Tracker {
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Exists == nil {
		config.Exists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	if config.Platform == "" {
		config.Platform = loop_client.CurrentPlatform()
	}
	return &Tracker{
		config:   config,
		log:      config.Logger.Named("downloads"),
		sessions: sync_.NewRWMutexed(make(sessionsByID)),
		events:   pubsub.NewPublisher[Event](),
		detach:   sync_.NewMutexed[[]func()](nil),
	}
}

// Attach starts tracking every download from src, until the returned function is called or the Tracker is closed.
func (t *Tracker) Attach(src host.DownloadSource) (detach func()) {
	var once sync.Once
	unregister := src.OnWillDownload(t.HandleWillDownload)
	detach = func() { once.Do(unregister) }
	_ = t.detach.Locked(func(detaches *[]func()) error {
		*detaches = append(*detaches, detach)
		return nil
	})
	return detach
}

// Subscribe returns the stream of session events, which ends when the Tracker is closed.
func (t *Tracker) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return t.events.Subscribe()
}

// SubscribeSession is like Subscribe, limited to the events of one session.
func (t *Tracker) SubscribeSession(id string) (pubsub.ReceiverCloser[Event], error) {
	return t.events.SubscribeFiltered(func(e Event) bool { return e.Session().ID == id })
}

// HandleWillDownload is the host's will-download callback. It assigns the save path before returning, so the host
// never prompts for a location, then follows the item's events on a goroutine of its own.
func (t *Tracker) HandleWillDownload(item host.DownloadItem) {
	id := item.ID()
	name := item.Filename()
	log := t.log.Sugar().With("download_id", id)

	if t.closing.IsSet() {
		item.SetSavePath(t.config.Resolver.Resolve(t.config.Platform, name))
		log.Warnf("not tracking download %q: %v", name, ErrTrackerClosed)
		return
	}

	tracked := &trackedSession{done: make(chan struct{})}
	path, err := t.reserve(id, name, tracked)
	if err != nil {
		log.Errorf("ignoring download %q: %v", name, err)
		return
	}
	item.SetSavePath(path)
	tracked.log.Infof("download started: %s", name)

	// Subscribe before returning so no event from the host is missed
	events, subscribeErr := item.Subscribe()
	tracked.events = events

	t.running.Add(1)
	go t.follow(tracked, subscribeErr)
}

// reserve picks a path no live session uses and registers tracked under it. Disk checks happen with the sessions
// lock released, so a candidate that turns out to exist on disk is retried.
func (t *Tracker) reserve(id, name string, tracked *trackedSession) (string, error) {
	onDisk := make(map[string]bool)
	for {
		var path string
		unchecked := false
		err := t.sessions.Locked(func(sessions *sessionsByID) error {
			if _, ok := (*sessions)[id]; ok {
				return ErrDuplicateSession
			}
			path = t.config.Resolver.ResolveUnique(t.config.Platform, name, func(candidate string) bool {
				for _, other := range *sessions {
					if other.path == candidate {
						return true
					}
				}
				if !t.config.AvoidDiskCollisions {
					return false
				}
				exists, checked := onDisk[candidate]
				if !checked {
					unchecked = true
				}
				return exists
			})
			if unchecked {
				return nil
			}
			tracked.path = path
			tracked.session = Session{
				ID:              id,
				SuggestedName:   name,
				DestinationPath: path,
				State:           StateRequested,
				StartedAt:       t.config.Now(),
			}
			tracked.log = t.log.Sugar().With("download_id", id, "path", path)
			(*sessions)[id] = tracked
			return nil
		})
		if err != nil || !unchecked {
			return path, err
		}
		onDisk[path] = t.config.Exists(path)
	}
}

// follow applies one session's events strictly in arrival order.
func (t *Tracker) follow(tracked *trackedSession, subscribeErr error) {
	defer t.running.Done()
	defer t.finish(tracked)

	t.events.Send(SessionAdded{sessionEvent{tracked.snapshot()}})
	if subscribeErr != nil {
		tracked.log.Errorf("cannot follow download: %v", subscribeErr)
		t.update(tracked, func(s *Session) {
			s.State = StateFailed
			s.FailureReason = subscribeErr.Error()
		})
		return
	}
	t.update(tracked, func(s *Session) {
		s.State = StateInProgress
	})

	for {
		select {
		case <-t.closing.Wait():
			tracked.log.Debugf("tracker closing, no longer following download")
			return
		case event, ok := <-tracked.events.Receive():
			if !ok {
				t.streamEnded(tracked)
				return
			}
			if t.apply(tracked, event) {
				return
			}
		}
	}
}

// apply returns true once the session has reached a final state.
func (t *Tracker) apply(tracked *trackedSession, event host.ItemEvent) bool {
	switch event.Kind {
	case host.ItemUpdated:
		switch event.State {
		case host.ItemInterrupted:
			session := t.update(tracked, func(s *Session) {
				s.State = StateInterrupted
				s.Resumable = event.CanResume
			})
			if event.CanResume {
				tracked.log.Infof("download is interrupted but can be resumed")
			} else {
				tracked.log.Infof("download is interrupted")
			}
			t.events.Send(SessionInterrupted{sessionEvent{session}})
		case host.ItemProgressing:
			t.update(tracked, func(s *Session) {
				if event.Paused {
					s.State = StatePaused
					return
				}
				s.State = StateInProgress
				if event.ReceivedBytes > s.ReceivedBytes {
					s.ReceivedBytes = event.ReceivedBytes
				}
				if event.TotalBytes > 0 {
					s.TotalBytes = event.TotalBytes
				}
			})
		default:
			tracked.log.Debugf("ignoring update with state %q", event.State)
		}
		return false

	case host.ItemDone:
		if event.State == host.ItemCompleted {
			session := t.update(tracked, func(s *Session) {
				s.State = StateCompleted
				if event.ReceivedBytes > s.ReceivedBytes {
					s.ReceivedBytes = event.ReceivedBytes
				}
				if event.TotalBytes > 0 {
					s.TotalBytes = event.TotalBytes
				}
				s.FinishedAt = t.config.Now()
			})
			tracked.log.Infof("download successful (%d bytes)", session.ReceivedBytes)
			t.completed(tracked, session)
			t.events.Send(SessionCompleted{sessionEvent{session}})
		} else {
			reason := string(event.State)
			session := t.update(tracked, func(s *Session) {
				s.State = StateFailed
				s.FailureReason = reason
				s.FinishedAt = t.config.Now()
			})
			tracked.log.Warnf("download failed: %s", reason)
			t.events.Send(SessionFailed{sessionEvent{session}, reason})
		}
		return true

	default:
		tracked.log.Debugf("ignoring event of kind %q", event.Kind)
		return false
	}
}

// streamEnded handles an item that stops sending events without a done event.
func (t *Tracker) streamEnded(tracked *trackedSession) {
	if tracked.snapshot().State == StateInterrupted {
		tracked.log.Infof("download left interrupted")
		return
	}
	session := t.update(tracked, func(s *Session) {
		s.State = StateFailed
		s.FailureReason = reasonStreamEnded
		s.FinishedAt = t.config.Now()
	})
	tracked.log.Warnf("download failed: %s", reasonStreamEnded)
	t.events.Send(SessionFailed{sessionEvent{session}, reasonStreamEnded})
}

// completed runs the success side effects, once per session.
func (t *Tracker) completed(tracked *trackedSession, session Session) {
	if t.config.Shell == nil {
		return
	}
	guard(tracked.log, "completion beep", func() error {
		t.config.Shell.Beep()
		return nil
	})
	guard(tracked.log, "opening download", func() error {
		return t.config.Shell.OpenPath(session.DestinationPath)
	})
}

// update applies f to the session, rejecting changes that are not a valid state transition.
func (t *Tracker) update(tracked *trackedSession, f func(s *Session)) Session {
	tracked.mu.Lock()
	old := tracked.session
	next := old
	f(&next)
	if next.State != old.State && !old.State.CanTransition(next.State) {
		tracked.mu.Unlock()
		tracked.log.Warnf("ignoring invalid transition %s -> %s", old.State, next.State)
		return old
	}
	tracked.session = next
	tracked.mu.Unlock()

	if next != old {
		t.events.Send(SessionUpdated{sessionEvent{next}, old})
	}
	return next
}

// finish drops the session from the working set; it is the only place a session is removed.
func (t *Tracker) finish(tracked *trackedSession) {
	if tracked.events != nil {
		tracked.events.Close()
	}
	final := tracked.snapshot()
	_ = t.sessions.Locked(func(sessions *sessionsByID) error {
		if (*sessions)[final.ID] == tracked {
			delete(*sessions, final.ID)
		}
		return nil
	})
	tracked.final = final
	close(tracked.done)
	t.events.Send(SessionRemoved{sessionEvent{final}})
}

// Sessions returns a snapshot of all live sessions, oldest first.
func (t *Tracker) Sessions() []Session {
	var list []Session
	_ = t.sessions.RLocked(func(sessions sessionsByID) error {
		list = make([]Session, 0, len(sessions))
		for _, tracked := range sessions {
			list = append(list, tracked.snapshot())
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartedAt.Before(list[j].StartedAt)
	})
	return list
}

// Get returns the live session with the given ID, if any.
func (t *Tracker) Get(id string) generic.Option[Session] {
	var tracked *trackedSession
	_ = t.sessions.RLocked(func(sessions sessionsByID) error {
		tracked = sessions[id]
		return nil
	})
	if tracked == nil {
		return generic.None[Session]()
	}
	return generic.Some(tracked.snapshot())
}

// Wait blocks until the session leaves the working set, returning its final state.
func (t *Tracker) Wait(ctx context.Context, id string) (Session, error) {
	var tracked *trackedSession
	_ = t.sessions.RLocked(func(sessions sessionsByID) error {
		tracked = sessions[id]
		return nil
	})
	if tracked == nil {
		return Session{}, ErrUnknownSession
	}
	select {
	case <-tracked.done:
		return tracked.final, nil
	case <-ctx.Done():
		return tracked.snapshot(), ctx.Err()
	}
}

// Close stops following downloads and ends all subscriptions. Downloads already in flight are left to the host.
func (t *Tracker) Close() {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if !t.closing.Set() {
		return
	}
	for _, unregister := range t.detach.Swap(nil) {
		unregister()
	}
	t.running.Wait()
	t.events.Close()
}

// guard runs a side effect whose failure must never escape the download callback path.
func guard(log *zap.SugaredLogger, what string, f func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s panicked: %v", what, r)
		}
	}()
	if err := f(); err != nil {
		log.Warnf("%s failed: %v", what, err)
	}
}
