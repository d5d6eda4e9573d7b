package headless

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client"
	"github.com/alanbriolat/loop-client/internal/host"
)

// OpenerCommand returns the command that opens a path with its default application on the platform.
func OpenerCommand(platform loop_client.Platform, path string) []string {
	switch platform {
	case loop_client.PlatformWindows:
		return []string{"cmd", "/c", "start", "", path}
	case loop_client.PlatformDarwin:
		return []string{"open", path}
	default:
		return []string{"xdg-open", path}
	}
}

type ShellConfig struct {
	Platform loop_client.Platform
	// Bell receives the terminal bell for Beep; defaults to stderr.
	Bell io.Writer
	// DisableOpen logs paths instead of opening them.
	DisableOpen bool
	// Start runs a command without waiting for it; defaults to exec.Cmd.Start.
	Start  func(argv []string) error
	Logger *zap.Logger
}

type Shell struct {
	config ShellConfig
	log    *zap.SugaredLogger
}

var _ host.Shell = &Shell{}

func NewShell(config ShellConfig) *Shell {
	if config.Platform == "" {
		config.Platform = loop_client.CurrentPlatform()
	}
	if config.Bell == nil {
		config.Bell = os.Stderr
	}
	if config.Start == nil {
		config.Start = startDetached
	}
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	return &Shell{
		config: config,
		log:    config.Logger.Named("shell").Sugar(),
	}
}

func startDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child whenever it exits
	go func() { _ = cmd.Wait() }()
	return nil
}

func (s *Shell) Beep() {
	_, _ = io.WriteString(s.config.Bell, "\a")
}

func (s *Shell) OpenPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if mtype, err := mimetype.DetectFile(path); err == nil {
			s.log.Infow("opening file", "path", path, "mime", mtype.String(), "size", info.Size())
		} else {
			s.log.Debugf("failed to detect type of %s: %v", path, err)
		}
	} else {
		s.log.Infow("opening directory", "path", path)
	}
	if s.config.DisableOpen {
		return nil
	}
	argv := OpenerCommand(s.config.Platform, path)
	if err := s.config.Start(argv); err != nil {
		return fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return nil
}
