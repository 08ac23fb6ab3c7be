// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package restart

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultMaxAge is how long a marker stays relevant.
const DefaultMaxAge = 5 * time.Minute

// Marker records a restart in progress.
type Marker struct {
	// Reason is a short human-readable cause ("configuration changed").
	Reason string `json:"reason"`

	// Executable is the binary that was re-executed.
	Executable string `json:"executable"`

	// Timestamp is when the restart was initiated.
	Timestamp time.Time `json:"timestamp"`
}

// Write atomically writes marker to path, creating the parent
// directory if needed. The file is mode 0600.
func Write(path string, marker Marker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling restart marker: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating restart marker directory: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary restart marker: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary restart marker: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary restart marker: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary restart marker: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming restart marker into place: %w", err)
	}

	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// Read parses the marker at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return Marker{}, fmt.Errorf("parsing restart marker %s: %w", path, err)
	}
	return marker, nil
}

// Check returns the marker at path and true when it exists and was
// written no more than maxAge before now. A missing or stale marker
// returns false with no error; unreadable or corrupt markers return
// the error.
func Check(path string, now time.Time, maxAge time.Duration) (Marker, bool, error) {
	marker, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Marker{}, false, nil
		}
		return Marker{}, false, err
	}
	if now.Sub(marker.Timestamp) > maxAge {
		return Marker{}, false, nil
	}
	return marker, true, nil
}

// Clear removes the marker. Missing files are not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing restart marker: %w", err)
	}
	return nil
}

// ExecFunc has the signature of unix.Exec.
type ExecFunc func(argv0 string, argv []string, envv []string) error

// Execer re-executes the current binary.
type Execer struct {
	// Executable resolves the running binary. Defaults to
	// os.Executable.
	Executable func() (string, error)

	// Args and Environ default to os.Args and os.Environ().
	Args    []string
	Environ []string

	// Replace defaults to unix.Exec.
	Replace ExecFunc
}

// Path returns the binary Exec would run.
func (e Execer) Path() (string, error) {
	executable := e.Executable
	if executable == nil {
		executable = os.Executable
	}
	path, err := executable()
	if err != nil {
		return "", fmt.Errorf("resolving executable: %w", err)
	}
	return path, nil
}

// Exec replaces the process image. It only returns on failure.
func (e Execer) Exec() error {
	path, err := e.Path()
	if err != nil {
		return err
	}
	args := e.Args
	if args == nil {
		args = os.Args
	}
	environ := e.Environ
	if environ == nil {
		environ = os.Environ()
	}
	exec := e.Replace
	if exec == nil {
		exec = unix.Exec
	}
	if err := exec(path, args, environ); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

// Exec re-executes the running binary with its original arguments and
// environment.
func Exec() error {
	return Execer{}.Exec()
}
