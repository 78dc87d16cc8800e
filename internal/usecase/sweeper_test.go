package usecase

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSweeper(t *testing.T) {
	Convey("Given a Sweeper with a 20 day retention", t, func() {
		tempDir, err := os.MkdirTemp("", "sweeper_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		log := &fakeLogger{}
		sweeper := NewSweeper(log, 20)

		makeFile := func(name string, age time.Duration) string {
			path := filepath.Join(tempDir, name)
			So(os.WriteFile(path, []byte("x"), 0644), ShouldBeNil)
			mtime := time.Now().Add(-age)
			So(os.Chtimes(path, mtime, mtime), ShouldBeNil)
			return path
		}

		Convey("When the directory has files of mixed ages and extensions", func() {
			old7z := makeFile("ancient.7z", 30*24*time.Hour)
			fresh7z := makeFile("fresh.7z", 24*time.Hour)
			oldTxt := makeFile("ancient.txt", 30*24*time.Hour)
			So(os.Mkdir(filepath.Join(tempDir, "sub.7z"), 0755), ShouldBeNil)

			out := sweeper.Sweep(tempDir, ".7z")

			Convey("Only matching files past the cutoff are deleted", func() {
				So(out.Succeeded, ShouldBeTrue)
				So(out.Deleted, ShouldEqual, 1)

				_, err := os.Stat(old7z)
				So(os.IsNotExist(err), ShouldBeTrue)
				_, err = os.Stat(fresh7z)
				So(err, ShouldBeNil)
				_, err = os.Stat(oldTxt)
				So(err, ShouldBeNil)
				_, err = os.Stat(filepath.Join(tempDir, "sub.7z"))
				So(err, ShouldBeNil)
			})

			Convey("The description names the target pattern", func() {
				So(out.Description, ShouldContainSubstring, tempDir+"/*.7z")
				So(out.Description, ShouldContainSubstring, "completed successfully")
			})
		})

		Convey("When a file sits exactly near the cutoff", func() {
			// Slightly newer than the cutoff: must survive, deletion is
			// strictly-older-than.
			boundary := makeFile("boundary.7z", 20*24*time.Hour-time.Minute)

			out := sweeper.Sweep(tempDir, ".7z")

			So(out.Succeeded, ShouldBeTrue)
			So(out.Deleted, ShouldEqual, 0)
			_, err := os.Stat(boundary)
			So(err, ShouldBeNil)
		})

		Convey("When the directory does not exist", func() {
			out := sweeper.Sweep(filepath.Join(tempDir, "missing"), ".7z")

			Convey("The sweep fails with a description, nothing is raised", func() {
				So(out.Succeeded, ShouldBeFalse)
				So(out.Description, ShouldContainSubstring, "failed")
			})
		})

		Convey("When the directory is empty", func() {
			out := sweeper.Sweep(tempDir, ".7z")

			So(out.Succeeded, ShouldBeTrue)
			So(out.Deleted, ShouldEqual, 0)
		})
	})
}
