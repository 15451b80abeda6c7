//go:build !windows

package cmdpipe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Config holds configuration for the command pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/badgedesk-cmd")
}

// Handler is called for every command read from the pipe.
type Handler func(Command)

// Pipe listens for commands on a named pipe.
type Pipe struct {
	path    string
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new Pipe. Returns nil if path is empty.
func New(cfg Config, handler Handler) (*Pipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	os.Remove(cfg.Path)
	if err := syscall.Mkfifo(cfg.Path, 0660); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipe{
		path:    cfg.Path,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start listens until Close. Each writer may send any number of lines;
// when it closes its end the pipe is reopened for the next writer.
// This should be called as a goroutine.
func (p *Pipe) Start() {
	log.WithField("path", p.path).Info("Command pipe listening")

	for {
		if p.ctx.Err() != nil {
			return
		}

		// Blocks until a writer connects.
		file, err := os.OpenFile(p.path, os.O_RDONLY, 0)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			log.Warnf("Command pipe open: %v", err)
			continue
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if p.ctx.Err() != nil {
				file.Close()
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			cmd, err := ParseLine(line)
			if err != nil {
				log.Warnf("Command pipe parse: %v", err)
				continue
			}
			if p.handler != nil {
				p.handler(cmd)
			}
		}
		file.Close()
	}
}

// Close stops the listener and removes the pipe.
func (p *Pipe) Close() error {
	p.cancel()
	// Unblock an OpenFile waiting for a writer.
	if f, err := os.OpenFile(p.path, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
		f.Close()
	}
	return os.Remove(p.path)
}
