package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepOutcome reports one retention sweep. The caller decides how to treat
// a failed sweep; by contract it never fails the backup that triggered it.
type SweepOutcome struct {
	Succeeded   bool
	Deleted     int
	Description string
}

// Sweeper deletes archive files older than the retention threshold. It runs
// only after a successful backup and upload; archives of failed runs are
// kept for operator inspection.
type Sweeper struct {
	logger        Logger
	retentionDays int
}

func NewSweeper(logger Logger, retentionDays int) *Sweeper {
	return &Sweeper{logger: logger, retentionDays: retentionDays}
}

// Sweep removes every file in dir whose name ends in extension and whose
// modification time is strictly older than the retention cutoff.
func (s *Sweeper) Sweep(dir, extension string) SweepOutcome {
	target := fmt.Sprintf("%s/*%s", dir, extension)
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return SweepOutcome{
			Description: fmt.Sprintf("cleaning up %s failed: %v.", target, err),
		}
	}

	deleted := 0
	failed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warnf("could not stat %s during cleanup: %v", entry.Name(), err)
			failed++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			s.logger.Warnf("could not delete old archive %s: %v", entry.Name(), err)
			failed++
			continue
		}
		deleted++
	}

	if failed > 0 {
		return SweepOutcome{
			Deleted:     deleted,
			Description: fmt.Sprintf("cleaning up %s deleted %d file(s), %d deletion(s) failed.", target, deleted, failed),
		}
	}

	return SweepOutcome{
		Succeeded:   true,
		Deleted:     deleted,
		Description: fmt.Sprintf("cleaning up %s completed successfully, %d file(s) deleted.", target, deleted),
	}
}
