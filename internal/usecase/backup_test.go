package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/adomasb/backstop/internal/domain"
)

// fakeStore is an in-memory object store double.
type fakeStore struct {
	objects  map[string][]byte
	modified map[string]time.Time
	uploads  []string

	existsErr   error
	uploadErr   error
	listErr     error
	downloadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, int64, error) {
	if s.existsErr != nil {
		return false, 0, s.existsErr
	}
	data, ok := s.objects[key]
	if !ok {
		return false, 0, nil
	}
	return true, int64(len(data)), nil
}

func (s *fakeStore) Upload(ctx context.Context, localPath, key string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.modified[key] = time.Now()
	s.uploads = append(s.uploads, key)
	return nil
}

func (s *fakeStore) ListByPrefix(ctx context.Context, prefix string) ([]domain.RemoteObject, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var objects []domain.RemoteObject
	for key, data := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, domain.RemoteObject{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: s.modified[key],
		})
	}
	for i := range objects {
		for j := i + 1; j < len(objects); j++ {
			if objects[j].LastModified.Before(objects[i].LastModified) {
				objects[i], objects[j] = objects[j], objects[i]
			}
		}
	}
	return objects, nil
}

func (s *fakeStore) Download(ctx context.Context, key, localPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	data, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("no such object %s", key)
	}
	return os.WriteFile(localPath, data, 0644)
}

// fakeArchiver writes content to the destination and records the source.
type fakeArchiver struct {
	content []byte
	sources []string
	fail    bool
	panics  bool
}

func (a *fakeArchiver) Archive(ctx context.Context, sourceDir, destPath string) domain.CommandOutcome {
	if a.panics {
		panic("archiver exploded")
	}
	a.sources = append(a.sources, sourceDir)
	if a.fail {
		return domain.CommandOutcome{
			Description: fmt.Sprintf("archiving %s to %s failed: 7za finished with return code 2.", sourceDir, destPath),
			Stderr:      "System ERROR: out of space",
		}
	}
	if err := os.WriteFile(destPath, a.content, 0644); err != nil {
		return domain.CommandOutcome{Description: err.Error()}
	}
	return domain.CommandOutcome{
		Succeeded:   true,
		Description: fmt.Sprintf("archiving %s to %s completed successfully.", sourceDir, destPath),
	}
}

type shellCall struct {
	dir  string
	name string
	args []string
}

// fakeShell records invocations and answers with per-tool outcomes.
type fakeShell struct {
	calls    []shellCall
	failures map[string]domain.CommandOutcome
}

func (f *fakeShell) Run(ctx context.Context, dir, name string, args ...string) domain.CommandOutcome {
	f.calls = append(f.calls, shellCall{dir: dir, name: name, args: args})
	if f.failures != nil {
		if out, ok := f.failures[name]; ok {
			return out
		}
	}
	return domain.CommandOutcome{
		Succeeded:   true,
		Description: fmt.Sprintf("%s completed successfully.", name),
	}
}

type procFixture struct {
	store    *fakeStore
	archiver *fakeArchiver
	shell    *fakeShell
	logger   *fakeLogger
	runLog   *fakeRunLog
	procs    *Procedures
}

func newProcFixture(opts ...Option) *procFixture {
	f := &procFixture{
		store:    newFakeStore(),
		archiver: &fakeArchiver{content: []byte("archive-bytes")},
		shell:    &fakeShell{},
		logger:   &fakeLogger{},
		runLog:   &fakeRunLog{},
	}
	f.procs = NewProcedures(f.store, f.archiver, f.shell,
		NewSweeper(f.logger, 20), f.logger, f.runLog, opts...)
	return f
}

func TestBackupDirectory(t *testing.T) {
	Convey("Given a directory backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		srcDir := filepath.Join(tempDir, "src")
		So(os.MkdirAll(srcDir, 0755), ShouldBeNil)
		archivePath := filepath.Join(tempDir, "archives", "docs.7z")
		So(os.MkdirAll(filepath.Dir(archivePath), 0755), ShouldBeNil)

		f := newProcFixture()
		ctx := context.Background()

		Convey("When the archive and upload succeed", func() {
			// An expired sibling archive, to observe the sweep.
			expired := filepath.Join(filepath.Dir(archivePath), "stale.7z")
			So(os.WriteFile(expired, []byte("x"), 0644), ShouldBeNil)
			old := time.Now().AddDate(0, 0, -30)
			So(os.Chtimes(expired, old, old), ShouldBeNil)

			result := f.procs.BackupDirectory(ctx, "docs", srcDir, archivePath)

			Convey("The result is a success", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(result.BriefStatus, ShouldEqual, "[Backup] docs OK")
			})

			Convey("The archive was built from the source and uploaded", func() {
				So(f.archiver.sources, ShouldResemble, []string{srcDir})
				So(f.store.uploads, ShouldResemble, []string{"docs.7z"})
			})

			Convey("Expired sibling archives were swept", func() {
				_, err := os.Stat(expired)
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the same archive already exists remotely with the same size", func() {
			f.store.objects["docs.7z"] = []byte("archive-bytes")

			result := f.procs.BackupDirectory(ctx, "docs", srcDir, archivePath)

			Convey("The upload is skipped but the run still succeeds", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(f.store.uploads, ShouldBeEmpty)
				So(result.DetailedStatus, ShouldContainSubstring, "skip upload")
			})
		})

		Convey("When the remote object has a different size", func() {
			f.store.objects["docs.7z"] = []byte("different-length-content")

			result := f.procs.BackupDirectory(ctx, "docs", srcDir, archivePath)

			Convey("The archive is uploaded again", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(f.store.uploads, ShouldResemble, []string{"docs.7z"})
			})
		})

		Convey("When the archiver fails", func() {
			f.archiver.fail = true

			expired := filepath.Join(filepath.Dir(archivePath), "stale.7z")
			So(os.WriteFile(expired, []byte("x"), 0644), ShouldBeNil)
			old := time.Now().AddDate(0, 0, -30)
			So(os.Chtimes(expired, old, old), ShouldBeNil)

			result := f.procs.BackupDirectory(ctx, "docs", srcDir, archivePath)

			Convey("The result is a failure and nothing was uploaded", func() {
				So(result.Succeeded, ShouldBeFalse)
				So(result.BriefStatus, ShouldEqual, "[Backup] docs FAILED")
				So(f.store.uploads, ShouldBeEmpty)
			})

			Convey("No sweep runs after a failure", func() {
				_, err := os.Stat(expired)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the upload fails", func() {
			f.store.uploadErr = fmt.Errorf("connection reset")

			result := f.procs.BackupDirectory(ctx, "docs", srcDir, archivePath)

			So(result.Succeeded, ShouldBeFalse)
			So(result.DetailedStatus, ShouldContainSubstring, "connection reset")
		})

		Convey("When the archiver panics", func() {
			f.archiver.panics = true

			result := f.procs.BackupDirectory(ctx, "docs", srcDir, archivePath)

			Convey("The panic is absorbed into an Unknown error failure", func() {
				So(result.Succeeded, ShouldBeFalse)
				So(result.BriefStatus, ShouldEqual, "[Backup] docs FAILED")
				So(result.DetailedStatus, ShouldContainSubstring, "Unknown error")
				So(len(f.logger.errors), ShouldEqual, 1)
			})
		})
	})
}

func TestBackupSubversionRepo(t *testing.T) {
	Convey("Given an svn repository backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		repoDir := filepath.Join(tempDir, "repo")
		So(os.MkdirAll(repoDir, 0755), ShouldBeNil)
		archivePath := filepath.Join(tempDir, "svn.7z")

		f := newProcFixture()
		ctx := context.Background()

		Convey("When the hotcopy succeeds", func() {
			result := f.procs.BackupSubversionRepo(ctx, "svn", repoDir, archivePath)

			Convey("svnadmin hotcopy ran against the live repo", func() {
				So(len(f.shell.calls), ShouldEqual, 1)
				call := f.shell.calls[0]
				So(call.name, ShouldEqual, "svnadmin")
				So(call.args[0], ShouldEqual, "hotcopy")
				So(call.args[1], ShouldEqual, "--clean-logs")
				So(call.args[2], ShouldEqual, repoDir)
			})

			Convey("The archive was built from the hot copy, not the live repo", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(len(f.archiver.sources), ShouldEqual, 1)
				So(f.archiver.sources[0], ShouldNotEqual, repoDir)
				So(filepath.Base(f.archiver.sources[0]), ShouldEqual, "repo")
			})

			Convey("The temporary copy is gone afterwards", func() {
				_, err := os.Stat(f.archiver.sources[0])
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When svnadmin fails", func() {
			f.shell.failures = map[string]domain.CommandOutcome{
				"svnadmin": {
					Description: "svnadmin finished with return code 1.",
					Stderr:      "svnadmin: E000002: cannot open",
				},
			}

			result := f.procs.BackupSubversionRepo(ctx, "svn", repoDir, archivePath)

			Convey("The run fails and the archiver never ran", func() {
				So(result.Succeeded, ShouldBeFalse)
				So(f.archiver.sources, ShouldBeEmpty)
			})

			Convey("The temporary directory is removed despite the failure", func() {
				hotCopy := f.shell.calls[0].args[3]
				_, err := os.Stat(filepath.Dir(hotCopy))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the archiver panics after the hotcopy", func() {
			f.archiver.panics = true

			result := f.procs.BackupSubversionRepo(ctx, "svn", repoDir, archivePath)

			Convey("The run fails with an Unknown error", func() {
				So(result.Succeeded, ShouldBeFalse)
				So(result.DetailedStatus, ShouldContainSubstring, "Unknown error")
			})

			Convey("The temporary directory is removed despite the panic", func() {
				hotCopy := f.shell.calls[0].args[3]
				_, err := os.Stat(filepath.Dir(hotCopy))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestBackupSubversionWorkingCopy(t *testing.T) {
	Convey("Given an svn working copy backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		wcDir := filepath.Join(tempDir, "wc")
		So(os.MkdirAll(wcDir, 0755), ShouldBeNil)
		archivePath := filepath.Join(tempDir, "wc.7z")

		f := newProcFixture()
		ctx := context.Background()

		Convey("When the update succeeds", func() {
			result := f.procs.BackupSubversionWorkingCopy(ctx, "wc", wcDir, archivePath)

			Convey("svn up ran inside the working copy", func() {
				So(len(f.shell.calls), ShouldEqual, 1)
				call := f.shell.calls[0]
				So(call.name, ShouldEqual, "svn")
				So(call.dir, ShouldEqual, wcDir)
				So(call.args, ShouldResemble, []string{"up", "--non-interactive", "--trust-server-cert"})
			})

			Convey("The working copy itself is archived", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(f.archiver.sources, ShouldResemble, []string{wcDir})
			})
		})

		Convey("When the update fails", func() {
			f.shell.failures = map[string]domain.CommandOutcome{
				"svn": {Description: "svn finished with return code 1."},
			}

			result := f.procs.BackupSubversionWorkingCopy(ctx, "wc", wcDir, archivePath)

			So(result.Succeeded, ShouldBeFalse)
			So(f.archiver.sources, ShouldBeEmpty)
		})
	})
}

func TestBackupGitRepo(t *testing.T) {
	Convey("Given a git repository backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		archivePath := filepath.Join(tempDir, "git.7z")
		cloneURL := "ssh://git@example.com/repo.git"

		f := newProcFixture()
		ctx := context.Background()

		Convey("When clone and bundle succeed", func() {
			result := f.procs.BackupGitRepo(ctx, "git", cloneURL, archivePath)

			Convey("A mirror clone and a full bundle were created", func() {
				So(len(f.shell.calls), ShouldEqual, 2)
				So(f.shell.calls[0].name, ShouldEqual, "git")
				So(f.shell.calls[0].args, ShouldResemble, []string{"clone", "--mirror", cloneURL, "."})
				So(f.shell.calls[1].args[0], ShouldEqual, "bundle")
				So(f.shell.calls[1].args[1], ShouldEqual, "create")
				So(f.shell.calls[1].args[3], ShouldEqual, "--all")
			})

			Convey("The bundle directory is what gets archived", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(len(f.archiver.sources), ShouldEqual, 1)
				bundlePath := f.shell.calls[1].args[2]
				So(filepath.Dir(bundlePath), ShouldEqual, f.archiver.sources[0])
				So(filepath.Base(bundlePath), ShouldEqual, "git_repo.bundle")
			})

			Convey("Both temporary directories are gone afterwards", func() {
				_, err := os.Stat(f.shell.calls[0].dir)
				So(os.IsNotExist(err), ShouldBeTrue)
				_, err = os.Stat(f.archiver.sources[0])
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the clone fails", func() {
			f.shell.failures = map[string]domain.CommandOutcome{
				"git": {Description: "git finished with return code 128."},
			}

			result := f.procs.BackupGitRepo(ctx, "git", cloneURL, archivePath)

			So(result.Succeeded, ShouldBeFalse)
			So(len(f.shell.calls), ShouldEqual, 1)
			So(f.archiver.sources, ShouldBeEmpty)

			Convey("The clone directory is removed despite the failure", func() {
				_, err := os.Stat(f.shell.calls[0].dir)
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestBackupTrac(t *testing.T) {
	Convey("Given a Trac environment backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		tracDir := filepath.Join(tempDir, "trac")
		So(os.MkdirAll(tracDir, 0755), ShouldBeNil)
		archivePath := filepath.Join(tempDir, "trac.7z")

		f := newProcFixture()
		ctx := context.Background()

		Convey("When the hotcopy succeeds", func() {
			result := f.procs.BackupTrac(ctx, "trac", tracDir, archivePath)

			So(result.Succeeded, ShouldBeTrue)
			So(len(f.shell.calls), ShouldEqual, 1)
			call := f.shell.calls[0]
			So(call.name, ShouldEqual, "trac-admin")
			So(call.args[0], ShouldEqual, tracDir)
			So(call.args[1], ShouldEqual, "hotcopy")
			So(f.archiver.sources[0], ShouldEqual, call.args[2])
		})
	})
}

func TestBackupLatestFile(t *testing.T) {
	Convey("Given a latest-file backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		writeAt := func(name string, age time.Duration) {
			path := filepath.Join(tempDir, name)
			So(os.WriteFile(path, []byte(name), 0644), ShouldBeNil)
			mtime := time.Now().Add(-age)
			So(os.Chtimes(path, mtime, mtime), ShouldBeNil)
		}

		f := newProcFixture()
		ctx := context.Background()

		Convey("When several files match the glob", func() {
			writeAt("a.log", 3*time.Hour)
			writeAt("b.log", 1*time.Hour)
			writeAt("c.txt", 1*time.Minute)

			result := f.procs.BackupLatestFile(ctx, "logs", filepath.Join(tempDir, "*.log"))

			Convey("Only the most recently modified match is uploaded", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(f.store.uploads, ShouldResemble, []string{"b.log"})
			})
		})

		Convey("When the glob matches nothing", func() {
			result := f.procs.BackupLatestFile(ctx, "logs", filepath.Join(tempDir, "*.log"))

			Convey("The run is a successful no-op", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(result.DetailedStatus, ShouldContainSubstring, "Nothing to backup")
				So(f.store.uploads, ShouldBeEmpty)
			})
		})

		Convey("When the glob pattern is malformed", func() {
			result := f.procs.BackupLatestFile(ctx, "logs", "[")

			So(result.Succeeded, ShouldBeFalse)
		})

		Convey("When the latest file already exists remotely with the same size", func() {
			writeAt("a.log", time.Hour)
			f.store.objects["a.log"] = []byte("a.log")

			result := f.procs.BackupLatestFile(ctx, "logs", filepath.Join(tempDir, "*.log"))

			So(result.Succeeded, ShouldBeTrue)
			So(f.store.uploads, ShouldBeEmpty)
		})
	})
}

func TestBackupLAMP(t *testing.T) {
	Convey("Given a LAMP stack backup", t, func() {
		tempDir, err := os.MkdirTemp("", "backup_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		webRoot := filepath.Join(tempDir, "www", "html")
		So(os.MkdirAll(webRoot, 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(webRoot, "index.php"), []byte("<?php"), 0644), ShouldBeNil)
		archivePath := filepath.Join(tempDir, "lamp.7z")

		f := newProcFixture(WithLampDirs([]string{webRoot}))
		ctx := context.Background()

		Convey("When the snapshot and dump succeed", func() {
			result := f.procs.BackupLAMP(ctx, "lamp", "shopdb", archivePath)

			Convey("mysqldump ran for the configured database", func() {
				So(len(f.shell.calls), ShouldEqual, 1)
				call := f.shell.calls[0]
				So(call.name, ShouldEqual, "mysqldump")
				So(call.args[len(call.args)-1], ShouldEqual, "shopdb")
				So(call.args[0], ShouldStartWith, "--result-file=")
				So(call.args[0], ShouldEndWith, "shopdb.sql")
			})

			Convey("The snapshot directory is what gets archived", func() {
				So(result.Succeeded, ShouldBeTrue)
				So(len(f.archiver.sources), ShouldEqual, 1)
				So(f.archiver.sources[0], ShouldNotEqual, webRoot)
			})
		})

		Convey("When a source directory is missing", func() {
			f := newProcFixture(WithLampDirs([]string{filepath.Join(tempDir, "missing")}))

			result := f.procs.BackupLAMP(ctx, "lamp", "shopdb", archivePath)

			So(result.Succeeded, ShouldBeFalse)
			So(f.shell.calls, ShouldBeEmpty)
		})

		Convey("When mysqldump fails", func() {
			f.shell.failures = map[string]domain.CommandOutcome{
				"mysqldump": {Description: "mysqldump finished with return code 2."},
			}

			result := f.procs.BackupLAMP(ctx, "lamp", "shopdb", archivePath)

			So(result.Succeeded, ShouldBeFalse)
			So(f.archiver.sources, ShouldBeEmpty)

			Convey("The snapshot directory is removed despite the failure", func() {
				dumpPath := strings.TrimPrefix(f.shell.calls[0].args[0], "--result-file=")
				_, err := os.Stat(filepath.Dir(dumpPath))
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})
	})
}

func TestDirSnapshotName(t *testing.T) {
	Convey("Directory paths flatten to dotted names", t, func() {
		So(dirSnapshotName("/var/www/html"), ShouldEqual, "var.www.html")
		So(dirSnapshotName("/etc/mysql"), ShouldEqual, "etc.mysql")
	})
}
