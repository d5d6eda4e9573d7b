package headless

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/host"
)

func TestShell(t *testing.T) {
	assert := assert_.New(t)
	var bell bytes.Buffer
	var started [][]string
	shell := NewShell(ShellConfig{
		Platform: loop_client.PlatformLinux,
		Bell:     &bell,
		Start: func(argv []string) error {
			started = append(started, argv)
			return nil
		},
		Logger: zaptest.NewLogger(t),
	})

	shell.Beep()
	assert.Equal("\a", bell.String())

	dir := t.TempDir()
	file := filepath.Join(dir, "[LOOP] notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0644))
	assert.NoError(shell.OpenPath(file))
	assert.NoError(shell.OpenPath(dir))
	assert.Equal([][]string{{"xdg-open", file}, {"xdg-open", dir}}, started)

	assert.Error(shell.OpenPath(filepath.Join(dir, "missing")))
	assert.Len(started, 2)
}

func TestShell_StartFailure(t *testing.T) {
	shell := NewShell(ShellConfig{
		Start:  func([]string) error { return errors.New("executable file not found") },
		Logger: zaptest.NewLogger(t),
	})
	assert_.Error(t, shell.OpenPath(t.TempDir()))
}

func TestShell_DisableOpen(t *testing.T) {
	shell := NewShell(ShellConfig{
		DisableOpen: true,
		Start:       func([]string) error { panic("should not start anything") },
		Logger:      zaptest.NewLogger(t),
	})
	assert_.NoError(t, shell.OpenPath(t.TempDir()))
}

func TestOpenerCommand(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal([]string{"cmd", "/c", "start", "", `C:\x`}, OpenerCommand(loop_client.PlatformWindows, `C:\x`))
	assert.Equal([]string{"open", "/x"}, OpenerCommand(loop_client.PlatformDarwin, "/x"))
	assert.Equal([]string{"xdg-open", "/x"}, OpenerCommand(loop_client.PlatformLinux, "/x"))
}

func TestProcess(t *testing.T) {
	assert := assert_.New(t)
	var spawned [][]string
	var exits []int
	quits := 0
	newProcess := func() *Process {
		return NewProcess(ProcessConfig{
			Args:   []string{"/usr/bin/loop-client", "--headless"},
			Quit:   func() { quits++ },
			Exit:   func(code int) { exits = append(exits, code) },
			Spawn:  func(args []string) error { spawned = append(spawned, args); return nil },
			Logger: zaptest.NewLogger(t),
		})
	}

	p := newProcess()
	assert.Equal([]string{"/usr/bin/loop-client", "--headless"}, p.Args())
	p.Quit()
	assert.Equal(1, quits)
	p.Exit(3)
	assert.Empty(spawned)
	assert.Equal([]int{3}, exits)

	p = newProcess()
	assert.NoError(p.Relaunch([]string{"--headless", "--relaunch"}))
	p.Exit(0)
	p.Exit(0)
	assert.Equal([][]string{{"--headless", "--relaunch"}}, spawned)
	assert.Equal([]int{3, 0}, exits)
	assert.Error(p.Relaunch(nil))
}

func TestWindow(t *testing.T) {
	assert := assert_.New(t)
	factory := &WindowFactory{Logger: zaptest.NewLogger(t)}
	_, err := factory.CreateWindow(host.WindowOptions{Title: "Loop"})
	assert.Error(err)

	factory.Downloader = NewDownloader(DownloaderConfig{Logger: zaptest.NewLogger(t)})
	w, err := factory.CreateWindow(host.WindowOptions{Title: "Loop", Hidden: true})
	require.NoError(t, err)
	window := w.(*Window)
	assert.False(window.IsShown())
	assert.Same(factory.Downloader, w.Downloads())

	ready := make(chan struct{})
	w.OnReadyToShow(func() { close(ready) })
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("window never became ready")
	}
	w.Show()
	assert.True(window.IsShown())

	clicked := false
	w.SetContextMenu([]host.MenuItem{{Role: host.MenuRoleReload, Click: func() { clicked = true }}})
	item, ok := window.MenuItem(host.MenuRoleReload)
	require.True(t, ok)
	item.Click()
	assert.True(clicked)

	closed := 0
	w.OnClosed(func() { closed++ })
	w.Close()
	w.Close()
	assert.Equal(1, closed)
}

func TestShortcuts(t *testing.T) {
	assert := assert_.New(t)
	var s Shortcuts
	triggered := 0
	assert.NoError(s.Register("CommandOrControl+D", func() { triggered++ }))
	assert.Error(s.Register("CommandOrControl+D", func() {}))
	assert.True(s.Trigger("CommandOrControl+D"))
	assert.False(s.Trigger("CommandOrControl+Q"))
	s.UnregisterAll()
	assert.False(s.Trigger("CommandOrControl+D"))
	assert.Equal(1, triggered)
}
