// Package stopsignal implements the named, cross-process STOP signal shared
// by the shutdown guard and external signalers (the preshutdown tripwire,
// operator tooling).
//
// The signal is a unix domain socket owned by the guard. Any accepted
// connection latches it: once set it stays set for the owner's lifetime, so
// a burst of simultaneous signalers collapses into one STOP. One path is
// authoritative; alias symlinks let older callers keep signaling under names
// they already know, all resolving to the same logical signal.
package stopsignal

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
)

const setDialTimeout = 3 * time.Second

// Signal is the owning side of the STOP signal.
type Signal struct {
	path    string
	aliases []string
	ln      net.Listener

	once  sync.Once
	fired chan struct{}

	closeOnce sync.Once
}

// Create binds the authoritative endpoint at path and symlinks each alias to
// it. If a socket from a prior process lifetime is still present it is removed
// first — a stale endpoint must neither block the bind nor make an old queued
// caller's connection count as a fresh STOP.
func Create(ctx context.Context, path string, aliases []string) (*Signal, error) {
	if _, err := os.Lstat(path); err == nil {
		log.WithFunc("stopsignal.Create").Warnf(ctx, "removing stale signal endpoint %s", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale signal %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind signal %s: %w", path, err)
	}
	// Broad mode so non-privileged tooling can still set the signal.
	if err := os.Chmod(path, 0o666); err != nil { //nolint:gosec
		_ = ln.Close()
		return nil, fmt.Errorf("chmod signal %s: %w", path, err)
	}

	s := &Signal{
		path:  path,
		ln:    ln,
		fired: make(chan struct{}),
	}
	for _, alias := range aliases {
		_ = os.Remove(alias)
		if err := os.Symlink(path, alias); err != nil {
			log.WithFunc("stopsignal.Create").Warnf(ctx, "alias %s unavailable: %v", alias, err)
			continue
		}
		s.aliases = append(s.aliases, alias)
	}

	go s.accept()
	return s, nil
}

// accept latches the signal on the first connection and absorbs the rest.
// Connection content is ignored: connecting is setting.
func (s *Signal) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return // listener closed
		}
		_ = conn.Close()
		s.once.Do(func() { close(s.fired) })
	}
}

// Done returns a channel closed when the signal is set. Manual-reset
// semantics: it never reopens.
func (s *Signal) Done() <-chan struct{} {
	return s.fired
}

// Close tears down the endpoint and its aliases. Idempotent; part of the
// guard's termination hardening, so every step tolerates failure.
func (s *Signal) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ln.Close()
		for _, alias := range s.aliases {
			_ = os.Remove(alias)
		}
		_ = os.Remove(s.path)
	})
	return err
}

// Set signals the STOP object owned by another process. Callers dial an
// existing endpoint (authoritative or alias); they never create one.
func Set(path string) error {
	conn, err := net.DialTimeout("unix", path, setDialTimeout)
	if err != nil {
		return fmt.Errorf("signal %s: %w", path, err)
	}
	return conn.Close()
}

// Exists reports whether a signal endpoint is present at path. Diagnostics
// only — presence does not guarantee a live listener.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
