package headless

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/alanbriolat/loop-client/internal/host"
)

type ProcessConfig struct {
	// Args defaults to os.Args.
	Args []string
	// Quit is called when the host is asked to quit gracefully, e.g. to cancel the main context.
	Quit func()
	// Exit defaults to os.Exit.
	Exit func(code int)
	// Spawn starts the relaunched instance; defaults to running the current executable with inherited stdio.
	Spawn  func(args []string) error
	Logger *zap.Logger
}

type Process struct {
	config   ProcessConfig
	log      *zap.SugaredLogger
	mu       sync.Mutex
	relaunch []string
	exited   bool
}

var _ host.Process = &Process{}

func NewProcess(config ProcessConfig) *Process {
	if config.Args == nil {
		config.Args = os.Args
	}
	if config.Quit == nil {
		config.Quit = func() {}
	}
	if config.Exit == nil {
		config.Exit = os.Exit
	}
	if config.Spawn == nil {
		config.Spawn = spawnSelf
	}
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	return &Process{
		config: config,
		log:    config.Logger.Named("process").Sugar(),
	}
}

func spawnSelf(args []string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(executable, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Start()
}

func (p *Process) Args() []string {
	return append([]string(nil), p.config.Args...)
}

// Relaunch records args for a new instance, which is started by Exit.
func (p *Process) Relaunch(args []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return fmt.Errorf("process already exited")
	}
	p.relaunch = append([]string{}, args...)
	return nil
}

func (p *Process) Exit(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	relaunch := p.relaunch
	p.mu.Unlock()
	if relaunch != nil {
		if err := p.config.Spawn(relaunch); err != nil {
			p.log.Errorf("failed to relaunch: %v", err)
		} else {
			p.log.Infof("relaunched with args %q", relaunch)
		}
	}
	p.config.Exit(code)
}

func (p *Process) Quit() {
	p.log.Debug("quit requested")
	p.config.Quit()
}
