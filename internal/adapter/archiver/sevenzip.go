// Package archiver produces the encrypted archive files uploaded to the
// object store.
package archiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adomasb/backstop/internal/domain"
)

// CommandRunner is the slice of the shell runner the archiver needs.
type CommandRunner interface {
	RunDiscardStdout(ctx context.Context, dir, name string, args ...string) domain.CommandOutcome
}

// SevenZip archives a directory into a single 7z container with both file
// contents and file names encrypted (-mhe=on) under the pre-provisioned
// passphrase.
type SevenZip struct {
	shell   CommandRunner
	secrets domain.SecretSource
}

func NewSevenZip(shell CommandRunner, secrets domain.SecretSource) *SevenZip {
	return &SevenZip{shell: shell, secrets: secrets}
}

func (a *SevenZip) Archive(ctx context.Context, sourceDir, destPath string) domain.CommandOutcome {
	passphrase, err := a.secrets.Passphrase()
	if err != nil {
		return domain.CommandOutcome{
			Description: fmt.Sprintf("archiving %s to %s failed: %v.", sourceDir, destPath, err),
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return domain.CommandOutcome{
			Description: fmt.Sprintf("archiving %s to %s failed: %v.", sourceDir, destPath, err),
		}
	}

	// 7za expands the trailing * itself; stdout (the per-file listing) is
	// discarded so the run log stays bounded.
	outcome := a.shell.RunDiscardStdout(ctx, sourceDir,
		"7za", "a", "-t7z", "-mhe=on", "-p"+passphrase, destPath, "*")

	if outcome.Succeeded {
		outcome.Description = fmt.Sprintf("archiving %s to %s completed successfully.", sourceDir, destPath)
	} else {
		outcome.Description = fmt.Sprintf("archiving %s to %s failed: %s", sourceDir, destPath, outcome.Description)
	}

	return outcome
}
