package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adomasb/backstop/internal/domain"
)

// DownloadLatest fetches the most recently modified remote object under
// prefix into storeDir, skipping the transfer when a local copy of the same
// size is already present. No checksum comparison is made.
func (p *Procedures) DownloadLatest(ctx context.Context, prefix, storeDir string) domain.BackupResult {
	hint := fmt.Sprintf("Get the latest backup starting with %q", prefix)
	return p.run(hint, "", func(rep *runReport) bool {
		rep.logf("Downloading the latest backup starting with %q to %s", prefix, storeDir)

		objects, err := p.store.ListByPrefix(ctx, prefix)
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}

		if len(objects) == 0 {
			rep.detailf("No file found starting with %q, nothing to do", prefix)
			return true
		}

		// ListByPrefix sorts oldest first.
		latest := objects[len(objects)-1]
		destPath := filepath.Join(storeDir, latest.Key)

		if info, err := os.Stat(destPath); err == nil && info.Size() == latest.Size {
			rep.detailf("The latest file %s already exists locally, skip download\n", latest.Key)
			return true
		}

		rep.detailf("Downloading %s to %s...", latest.Key, destPath)
		if err := p.store.Download(ctx, latest.Key, destPath); err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}

		rep.detailf("done.\nSuccessfully downloaded %s (%s)", destPath, prettyFileSize(destPath))
		return true
	})
}
