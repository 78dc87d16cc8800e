// Package runlog maintains the operator-facing run log: a plain-text,
// append-only file with one timestamped line per event. It is deliberately
// never rotated or truncated, and its tail is what gets attached to status
// emails.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

type File struct {
	path string
}

// New returns a run log writing to path. An empty path yields a no-op log.
func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Append writes "[timestamp] msg" to the log. Appends during a procedure are
// what make partial progress survive a crash mid-run, so each call opens,
// writes and closes the file. Write failures are returned but callers treat
// them as non-fatal.
func (f *File) Append(msg string) error {
	if f.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create run log directory: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(timestampLayout), msg)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to run log: %w", err)
	}

	return nil
}

// tailWindowBytes bounds how much of the file Tail reads. The log only ever
// grows, so reading it whole would get slower for the life of the host; a
// fixed window from the end is always enough for the line counts callers ask
// for.
const tailWindowBytes = 64 * 1024

// Tail returns the last n lines of the log, or "" when the log is empty,
// missing or unconfigured.
func (f *File) Tail(n int) string {
	if f.path == "" || n <= 0 {
		return ""
	}

	file, err := os.Open(f.path)
	if err != nil {
		return ""
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return ""
	}

	offset := info.Size() - tailWindowBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return ""
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return ""
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if offset > 0 && len(lines) > 0 {
		// The window can start mid-line; drop the partial first line.
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n")
}
