package domain

import "context"

// Archiver compresses a source directory into a single encrypted archive
// file. Failures are reported through the returned outcome, never raised.
type Archiver interface {
	Archive(ctx context.Context, sourceDir, destPath string) CommandOutcome
}
