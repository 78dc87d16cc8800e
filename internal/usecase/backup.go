// Package usecase implements the per-source backup procedures. Every
// procedure walks the same chain (snapshot, archive, upload decision,
// cleanup) and returns a BackupResult instead of an error: an internal
// fault must never terminate the scheduler run.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adomasb/backstop/internal/domain"
)

// CommandRunner is the slice of the shell runner the procedures need.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) domain.CommandOutcome
}

// defaultLampDirs are the well-known directories a stock LAMP host keeps its
// state in: document root, web server config, database config, web server
// logs.
var defaultLampDirs = []string{
	"/var/www/html",
	"/etc/apache2",
	"/etc/mysql",
	"/var/log/apache2",
}

type Procedures struct {
	store    domain.ObjectStore
	archiver domain.Archiver
	shell    CommandRunner
	sweeper  *Sweeper
	logger   Logger
	runlog   RunLog
	lampDirs []string
}

type Option func(*Procedures)

// WithLampDirs overrides the directories the LAMP procedure snapshots.
func WithLampDirs(dirs []string) Option {
	return func(p *Procedures) {
		p.lampDirs = dirs
	}
}

func NewProcedures(
	store domain.ObjectStore,
	archiver domain.Archiver,
	shell CommandRunner,
	sweeper *Sweeper,
	logger Logger,
	runlog RunLog,
	opts ...Option,
) *Procedures {
	p := &Procedures{
		store:    store,
		archiver: archiver,
		shell:    shell,
		sweeper:  sweeper,
		logger:   logger,
		runlog:   runlog,
		lampDirs: defaultLampDirs,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run drives the shared chain around fn. On success the retention sweeper
// runs over the archive's directory (archivePath may be empty for
// procedures without an archive of their own). A final recover maps
// anything unexpected to an "Unknown error" result, so the caller always
// receives a well-formed outcome.
func (p *Procedures) run(hint, archivePath string, fn func(rep *runReport) bool) (result domain.BackupResult) {
	rep := newRunReport(hint, p.runlog)
	ok := false

	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("unclassified fault in backup %q: %v", hint, r)
			rep.detailf("\nUnknown error")
		} else if ok && archivePath != "" {
			out := p.sweeper.Sweep(filepath.Dir(archivePath), filepath.Ext(archivePath))
			rep.logf("%s", out.Description)
		}
		result = rep.finish(ok)
	}()

	rep.logf("Starting backup")
	ok = fn(rep)
	return
}

// uploadIfMissing implements the upload decision: skip when the remote
// object already exists with the same size. Size is the only criterion; a
// remote object of equal size but different content is indistinguishable
// from "already backed up".
func (p *Procedures) uploadIfMissing(ctx context.Context, rep *runReport, localPath string) bool {
	info, err := os.Stat(localPath)
	if err != nil {
		rep.detailf("\nError: %v", err)
		return false
	}

	key := filepath.Base(localPath)
	present, size, err := p.store.Exists(ctx, key)
	if err != nil {
		rep.detailf("\nError: %v", err)
		return false
	}

	if present && size == info.Size() {
		rep.detailf("The file %s with size %s already exists remotely, skip upload\n",
			localPath, prettySize(info.Size()))
		return true
	}

	rep.detailf("Uploading %s (%s)...", localPath, prettySize(info.Size()))
	rep.logf("Uploading %s (%s)", localPath, prettySize(info.Size()))
	if err := p.store.Upload(ctx, localPath, key); err != nil {
		rep.detailf("\nError: %v", err)
		return false
	}
	rep.detailf("done.")
	return true
}

func (p *Procedures) archiveAndUpload(ctx context.Context, rep *runReport, srcDir, archivePath string) bool {
	rep.logf("Archiving %s to %s", srcDir, archivePath)
	out := p.archiver.Archive(ctx, srcDir, archivePath)
	rep.logf("%s\nStdErr: %s\n", out.Description, out.Stderr)
	if !out.Succeeded {
		return false
	}
	return p.uploadIfMissing(ctx, rep, archivePath)
}

// BackupDirectory archives a plain directory as-is.
func (p *Procedures) BackupDirectory(ctx context.Context, hint, dir, archivePath string) domain.BackupResult {
	return p.run(hint, archivePath, func(rep *runReport) bool {
		return p.archiveAndUpload(ctx, rep, dir, archivePath)
	})
}

// BackupSubversionRepo hot-copies a live server-side repository into a
// temporary directory and archives the copy. The live repository is never
// touched beyond what svnadmin hotcopy does.
func (p *Procedures) BackupSubversionRepo(ctx context.Context, hint, repoDir, archivePath string) domain.BackupResult {
	return p.run(hint, archivePath, func(rep *runReport) bool {
		rep.logf("Backing up svn repo at %s", repoDir)

		tmp, err := os.MkdirTemp("", "backstop-svn-")
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}
		defer os.RemoveAll(tmp)

		hotCopy := filepath.Join(tmp, "repo")
		out := p.shell.Run(ctx, repoDir, "svnadmin", "hotcopy", "--clean-logs", repoDir, hotCopy)
		rep.outcome(out)
		if !out.Succeeded {
			return false
		}

		return p.archiveAndUpload(ctx, rep, hotCopy, archivePath)
	})
}

// BackupSubversionWorkingCopy updates the working copy in place, then
// archives it. Unlike every other procedure this one mutates its source:
// working copies are expected to be kept current, so the asymmetry is
// intentional.
func (p *Procedures) BackupSubversionWorkingCopy(ctx context.Context, hint, wcDir, archivePath string) domain.BackupResult {
	return p.run(hint, archivePath, func(rep *runReport) bool {
		rep.logf("Updating %s", wcDir)

		out := p.shell.Run(ctx, wcDir, "svn", "up", "--non-interactive", "--trust-server-cert")
		rep.outcome(out)
		if !out.Succeeded {
			return false
		}

		return p.archiveAndUpload(ctx, rep, wcDir, archivePath)
	})
}

// BackupGitRepo clones a mirror of the remote repository into a fresh
// temporary directory and bundles all refs into a single portable file,
// which is then archived. The clone directory is gone once the bundle
// exists.
func (p *Procedures) BackupGitRepo(ctx context.Context, hint, cloneURL, archivePath string) domain.BackupResult {
	return p.run(hint, archivePath, func(rep *runReport) bool {
		rep.logf("Backing up git repo %s", cloneURL)

		bundleDir, err := os.MkdirTemp("", "backstop-git-")
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}
		defer os.RemoveAll(bundleDir)

		cloneDir, err := os.MkdirTemp("", "backstop-git-clone-")
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}
		defer os.RemoveAll(cloneDir)

		out := p.shell.Run(ctx, cloneDir, "git", "clone", "--mirror", cloneURL, ".")
		rep.outcome(out)
		if !out.Succeeded {
			return false
		}

		bundle := filepath.Join(bundleDir, "git_repo.bundle")
		out = p.shell.Run(ctx, cloneDir, "git", "bundle", "create", bundle, "--all")
		rep.outcome(out)
		if !out.Succeeded {
			return false
		}
		os.RemoveAll(cloneDir)

		return p.archiveAndUpload(ctx, rep, bundleDir, archivePath)
	})
}

// BackupTrac hot-copies a Trac environment via trac-admin and archives the
// copy.
func (p *Procedures) BackupTrac(ctx context.Context, hint, tracDir, archivePath string) domain.BackupResult {
	return p.run(hint, archivePath, func(rep *runReport) bool {
		rep.logf("Backing up Trac at %s", tracDir)

		tmp, err := os.MkdirTemp("", "backstop-trac-")
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}
		defer os.RemoveAll(tmp)

		hotCopy := filepath.Join(tmp, "trac")
		out := p.shell.Run(ctx, tracDir, "trac-admin", tracDir, "hotcopy", hotCopy)
		rep.outcome(out)
		if !out.Succeeded {
			return false
		}

		return p.archiveAndUpload(ctx, rep, hotCopy, archivePath)
	})
}

// BackupLatestFile uploads the most recently modified file matching glob.
// The file is the deliverable itself, so there is no archive step and no
// retention sweep. A glob matching nothing is a successful no-op.
func (p *Procedures) BackupLatestFile(ctx context.Context, hint, glob string) domain.BackupResult {
	return p.run(hint, "", func(rep *runReport) bool {
		matches, err := filepath.Glob(glob)
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}

		if len(matches) == 0 {
			rep.detailf("Nothing to backup in %s", glob)
			return true
		}

		latest, err := latestModified(matches)
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}

		return p.uploadIfMissing(ctx, rep, latest)
	})
}

func latestModified(paths []string) (string, error) {
	var latest string
	var latestMod int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if latest == "" || info.ModTime().UnixNano() > latestMod {
			latest = path
			latestMod = info.ModTime().UnixNano()
		}
	}
	return latest, nil
}

// BackupLAMP snapshots a LAMP host: the well-known web and database
// directories are copied into a temporary directory and the named MySQL
// database is dumped next to them, then the whole snapshot is archived.
func (p *Procedures) BackupLAMP(ctx context.Context, hint, dbName, archivePath string) domain.BackupResult {
	return p.run(hint, archivePath, func(rep *runReport) bool {
		tmp, err := os.MkdirTemp("", "backstop-lamp-")
		if err != nil {
			rep.detailf("\nError: %v", err)
			return false
		}
		defer os.RemoveAll(tmp)

		for _, dir := range p.lampDirs {
			dest := filepath.Join(tmp, dirSnapshotName(dir))
			if err := copyTree(dir, dest); err != nil {
				rep.detailf("\nError: %v", err)
				return false
			}
		}

		dumpPath := filepath.Join(tmp, dbName+".sql")
		out := p.shell.Run(ctx, "", "mysqldump",
			fmt.Sprintf("--result-file=%s", dumpPath), dbName)
		rep.outcome(out)
		if !out.Succeeded {
			return false
		}

		return p.archiveAndUpload(ctx, rep, tmp, archivePath)
	})
}

// dirSnapshotName flattens "/var/www/html" to "var.www.html" so the copies
// sit side by side in the snapshot.
func dirSnapshotName(dir string) string {
	return strings.ReplaceAll(strings.Trim(dir, "/"), "/", ".")
}
