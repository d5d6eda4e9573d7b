package download

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/host"
	"github.com/alanbriolat/loop-client/internal/host/hosttest"
	"github.com/alanbriolat/loop-client/internal/pubsub"
)

type fixture struct {
	tracker *Tracker
	source  *hosttest.Source
	shell   *hosttest.Shell
}

func newFixture(t *testing.T, platform loop_client.Platform, root string) *fixture {
	f := &fixture{
		source: &hosttest.Source{},
		shell:  &hosttest.Shell{},
	}
	f.tracker = NewTracker(Config{
		Resolver: loop_client.NewResolver(root),
		Platform: platform,
		Shell:    f.shell,
		Exists:   func(string) bool { return false },
		Logger:   zaptest.NewLogger(t),
	})
	f.tracker.Attach(f.source)
	t.Cleanup(f.tracker.Close)
	return f
}

// start subscribes to the item's session events, then reports the item to the tracker.
func (f *fixture) start(t *testing.T, item *hosttest.Item) pubsub.ReceiverCloser[Event] {
	events, err := f.tracker.SubscribeSession(item.ID())
	require.NoError(t, err)
	require.NoError(t, f.source.Start(item))
	return events
}

// collect gathers events up to and including SessionRemoved.
func collect(t *testing.T, events pubsub.ReceiverCloser[Event]) []Event {
	t.Helper()
	defer events.Close()
	var collected []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events.Receive():
			if !ok {
				return collected
			}
			collected = append(collected, event)
			if _, ok := event.(SessionRemoved); ok {
				return collected
			}
		case <-timeout:
			t.Fatalf("timed out waiting for session to be removed, got %d events", len(collected))
			return nil
		}
	}
}

func final(t *testing.T, collected []Event) Session {
	t.Helper()
	require.NotEmpty(t, collected)
	removed, ok := collected[len(collected)-1].(SessionRemoved)
	require.True(t, ok, "last event should be SessionRemoved, got %T", collected[len(collected)-1])
	return removed.Session()
}

func countEvents[E Event](collected []Event) int {
	n := 0
	for _, event := range collected {
		if _, ok := event.(E); ok {
			n++
		}
	}
	return n
}

func TestTracker_ProgressThenComplete(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformWindows, `C:\Users\loop\Downloads`)

	item := hosttest.NewItem("1", "installer.exe")
	events := f.start(t, item)
	// The save path must be assigned before Start returns
	assert.Equal(`C:\Users\loop\Downloads\LoopClient\[LOOP] installer.exe`, item.SavePath())

	item.SetTotal(300)
	item.Progress(100)
	item.Progress(200)
	item.Progress(300)
	item.Done(host.ItemCompleted)

	collected := collect(t, events)
	session := final(t, collected)
	assert.Equal(StateCompleted, session.State)
	assert.Equal(int64(300), session.ReceivedBytes)
	assert.Equal(int64(300), session.TotalBytes)
	assert.Equal(item.SavePath(), session.DestinationPath)
	assert.Equal([]string{item.SavePath()}, f.shell.Opened())
	assert.Equal(1, f.shell.Beeps())
	assert.Equal(1, countEvents[SessionCompleted](collected))
	assert.True(f.tracker.Get("1").IsNone(), "finished sessions leave the working set")
}

func TestTracker_ExtraDoneEventsAreIgnored(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "a.bin")
	events := f.start(t, item)
	item.Done(host.ItemCompleted)
	item.Done(host.ItemCompleted)
	collect(t, events)

	assert.Len(f.shell.Opened(), 1)
	assert.Equal(1, f.shell.Beeps())
}

func TestTracker_Failed(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "pkg.tar.gz")
	events := f.start(t, item)
	assert.Equal("/dl/LoopClient/[LOOP] pkg.tar.gz", item.SavePath())
	item.Progress(10)
	item.Done(host.ItemCancelled)

	collected := collect(t, events)
	session := final(t, collected)
	assert.Equal(StateFailed, session.State)
	assert.Equal("cancelled", session.FailureReason)
	assert.Empty(f.shell.Opened())
	assert.Equal(0, f.shell.Beeps())
	assert.Equal(1, countEvents[SessionFailed](collected))
}

func TestTracker_PausedFreezesBytes(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "big.iso")
	events := f.start(t, item)
	item.Progress(10)
	item.Pause()
	// Bytes reported while paused must not advance the session
	item.Progress(40)
	item.Resume()
	item.Progress(30) // Going backwards is ignored too
	item.Done(host.ItemCompleted)

	collected := collect(t, events)
	var states []State
	var last int64
	for _, event := range collected {
		updated, ok := event.(SessionUpdated)
		if !ok {
			continue
		}
		s := updated.Session()
		states = append(states, s.State)
		assert.GreaterOrEqual(s.ReceivedBytes, last, "received bytes must never decrease")
		if updated.Old.State == StatePaused && s.State == StatePaused {
			assert.Equal(updated.Old.ReceivedBytes, s.ReceivedBytes, "received bytes must not change while paused")
		}
		last = s.ReceivedBytes
	}
	assert.Equal([]State{StateInProgress, StateInProgress, StatePaused, StateInProgress, StateCompleted}, states)
	assert.Equal(int64(40), final(t, collected).ReceivedBytes)
}

func TestTracker_InterruptedThenQuiet(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "flaky.zip")
	events := f.start(t, item)
	item.Progress(5)
	item.Interrupt(true)
	item.Close()

	collected := collect(t, events)
	session := final(t, collected)
	assert.Equal(StateInterrupted, session.State)
	assert.True(session.Resumable)
	assert.Equal(1, countEvents[SessionInterrupted](collected))
	assert.Empty(f.shell.Opened())
}

func TestTracker_InterruptedThenResumed(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "flaky.zip")
	events := f.start(t, item)
	item.Progress(5)
	item.Interrupt(true)
	item.Progress(9)
	item.Done(host.ItemCompleted)

	session := final(t, collect(t, events))
	assert.Equal(StateCompleted, session.State)
	assert.Equal(int64(9), session.ReceivedBytes)
	assert.Len(f.shell.Opened(), 1)
}

func TestTracker_StreamEndsWithoutDone(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "gone.bin")
	events := f.start(t, item)
	item.Progress(5)
	item.Close()

	session := final(t, collect(t, events))
	assert.Equal(StateFailed, session.State)
	assert.Equal(reasonStreamEnded, session.FailureReason)
	assert.Empty(f.shell.Opened())
}

func TestTracker_DuplicateAndCollidingDownloads(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	first := hosttest.NewItem("1", "report.pdf")
	firstEvents := f.start(t, first)
	second := hosttest.NewItem("2", "report.pdf")
	secondEvents := f.start(t, second)
	assert.Equal("/dl/LoopClient/[LOOP] report.pdf", first.SavePath())
	assert.Equal("/dl/LoopClient/[LOOP] report (1).pdf", second.SavePath())

	// Reporting the same host item again does not create a second session
	again := hosttest.NewItem("1", "other.pdf")
	assert.Error(f.source.Start(again), "duplicate item is not given a path by the tracker")
	assert.Len(f.tracker.Sessions(), 2)

	first.Done(host.ItemCompleted)
	second.Done(host.ItemCompleted)
	collect(t, firstEvents)
	collect(t, secondEvents)
	assert.ElementsMatch([]string{first.SavePath(), second.SavePath()}, f.shell.Opened())
	assert.Empty(f.tracker.Sessions())
}

func TestTracker_AvoidDiskCollisions(t *testing.T) {
	assert := assert_.New(t)
	tracker := NewTracker(Config{
		Resolver:            loop_client.NewResolver("/dl"),
		Platform:            loop_client.PlatformLinux,
		AvoidDiskCollisions: true,
		Exists:              func(p string) bool { return p == "/dl/LoopClient/[LOOP] a.txt" },
		Logger:              zaptest.NewLogger(t),
	})
	defer tracker.Close()

	item := hosttest.NewItem("1", "a.txt")
	tracker.HandleWillDownload(item)
	assert.Equal("/dl/LoopClient/[LOOP] a (1).txt", item.SavePath())
}

func TestTracker_Detach(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	other := &hosttest.Source{}
	detach := f.tracker.Attach(other)
	assert.Equal(1, other.HandlerCount())
	detach()
	assert.Equal(0, other.HandlerCount())
	detach()

	item := hosttest.NewItem("1", "a.bin")
	assert.Error(other.Start(item), "a detached source has nobody to assign a save path")
	assert.True(f.tracker.Get("1").IsNone())
	assert.Equal(1, f.source.HandlerCount(), "detaching one source leaves the others attached")
}

func TestTracker_HostCallbacksRunOutsideLock(t *testing.T) {
	assert := assert_.New(t)
	var tracker *Tracker
	existsCalls := 0
	tracker = NewTracker(Config{
		Resolver:            loop_client.NewResolver("/dl"),
		Platform:            loop_client.PlatformLinux,
		AvoidDiskCollisions: true,
		Exists: func(p string) bool {
			existsCalls++
			_ = tracker.Sessions()
			return p == "/dl/LoopClient/[LOOP] a.txt"
		},
		Logger: zaptest.NewLogger(t),
	})
	t.Cleanup(tracker.Close)
	source := &hosttest.Source{}
	tracker.Attach(source)

	item := hosttest.NewItem("1", "a.txt")
	var seen []Session
	item.OnSetSavePath = func(string) { seen = tracker.Sessions() }

	started := make(chan error, 1)
	go func() { started <- source.Start(item) }()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("will-download callback did not return")
	}
	assert.Equal("/dl/LoopClient/[LOOP] a (1).txt", item.SavePath())
	assert.Equal(2, existsCalls)
	if assert.Len(seen, 1) {
		assert.Equal(item.SavePath(), seen[0].DestinationPath)
	}
}

func TestTracker_StalledSubscriberDoesNotBlockHost(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")
	stalled, err := f.tracker.Subscribe()
	require.NoError(t, err)

	const count = 50
	started := make(chan error, 1)
	go func() {
		for i := 0; i < count; i++ {
			if err := f.source.Start(hosttest.NewItem(fmt.Sprint(i), "a.bin")); err != nil {
				started <- err
				return
			}
		}
		started <- nil
	}()
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("will-download callback blocked on a subscriber that never reads")
	}
	assert.Len(f.tracker.Sessions(), count)
	stalled.Close()
}

func TestTracker_SideEffectFailuresAreContained(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")
	f.shell.OpenErr = errors.New("no handler for file type")

	item := hosttest.NewItem("1", "a.unknown")
	events := f.start(t, item)
	item.Done(host.ItemCompleted)
	session := final(t, collect(t, events))
	assert.Equal(StateCompleted, session.State)
	assert.Len(f.shell.Opened(), 1)
}

type panickingShell struct{}

func (panickingShell) Beep()                  { panic("no audio device") }
func (panickingShell) OpenPath(string) error { panic("no desktop") }

func TestTracker_SideEffectPanicsAreContained(t *testing.T) {
	assert := assert_.New(t)
	tracker := NewTracker(Config{
		Resolver: loop_client.NewResolver("/dl"),
		Platform: loop_client.PlatformLinux,
		Shell:    panickingShell{},
		Logger:   zaptest.NewLogger(t),
	})
	defer tracker.Close()
	source := &hosttest.Source{}
	tracker.Attach(source)

	item := hosttest.NewItem("1", "a.bin")
	events, err := tracker.SubscribeSession("1")
	assert.NoError(err)
	assert.NoError(source.Start(item))
	item.Done(host.ItemCompleted)
	assert.Equal(StateCompleted, final(t, collect(t, events)).State)
}

func TestTracker_SubscribeFailure(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "a.bin")
	item.SubscribeErr = errors.New("item already destroyed")
	events := f.start(t, item)
	session := final(t, collect(t, events))
	assert.Equal(StateFailed, session.State)
	assert.Equal("item already destroyed", session.FailureReason)
}

func TestTracker_Wait(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	_, err := f.tracker.Wait(context.Background(), "missing")
	assert.ErrorIs(err, ErrUnknownSession)

	item := hosttest.NewItem("1", "a.bin")
	require.NoError(t, f.source.Start(item))
	live, ok := f.tracker.Get("1").Get()
	assert.True(ok)
	assert.Equal("a.bin", live.SuggestedName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.tracker.Wait(ctx, "1")
	assert.ErrorIs(err, context.DeadlineExceeded)

	waited := make(chan Session)
	go func() {
		session, err := f.tracker.Wait(context.Background(), "1")
		assert.NoError(err)
		waited <- session
	}()
	// Give the waiter time to find the live session before it finishes
	time.Sleep(20 * time.Millisecond)
	item.Progress(3)
	item.Done(host.ItemCompleted)
	session := <-waited
	assert.Equal(StateCompleted, session.State)
	assert.Equal(int64(3), session.ReceivedBytes)
}

func TestTracker_Close(t *testing.T) {
	assert := assert_.New(t)
	f := newFixture(t, loop_client.PlatformLinux, "/dl")

	item := hosttest.NewItem("1", "a.bin")
	require.NoError(t, f.source.Start(item))
	all, err := f.tracker.Subscribe()
	require.NoError(t, err)

	f.tracker.Close()
	assert.Equal(0, f.source.HandlerCount(), "closing detaches from download sources")
	assert.Empty(f.tracker.Sessions())
	for range all.Receive() {
		// Drain until the publisher closes the subscription
	}

	// Items reported directly after close still get a path, but are not tracked
	late := hosttest.NewItem("2", "late.bin")
	f.tracker.HandleWillDownload(late)
	assert.Equal("/dl/LoopClient/[LOOP] late.bin", late.SavePath())
	assert.True(f.tracker.Get("2").IsNone())
	f.tracker.Close()
}

func TestState_CanTransition(t *testing.T) {
	assert := assert_.New(t)
	assert.True(StateRequested.CanTransition(StateInProgress))
	assert.False(StateRequested.CanTransition(StateCompleted))
	assert.True(StatePaused.CanTransition(StateInProgress))
	assert.True(StateInterrupted.CanTransition(StateInProgress))
	assert.False(StateCompleted.CanTransition(StateInProgress))
	assert.False(StateFailed.CanTransition(StateFailed))
	assert.True(StateCompleted.IsFinal())
	assert.False(StateInterrupted.IsFinal())
}
