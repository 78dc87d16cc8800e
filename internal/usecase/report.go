package usecase

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adomasb/backstop/internal/domain"
)

// RunLog is the slice of the run log the procedures need.
type RunLog interface {
	Append(msg string) error
}

// Logger is the operational logger interface, satisfied by the zap wrapper.
type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// runReport accumulates the two-tier status of one procedure run: the brief
// one-liner and the detailed transcript. Every significant step is appended
// to the run log as it happens, so partial progress survives a crash.
type runReport struct {
	brief    string
	detailed strings.Builder
	start    time.Time
	log      RunLog
}

func newRunReport(hint string, log RunLog) *runReport {
	return &runReport{
		brief: "[Backup] " + hint,
		start: time.Now(),
		log:   log,
	}
}

func (r *runReport) logf(format string, args ...interface{}) {
	// Run log write failures must not fail a backup.
	_ = r.log.Append(fmt.Sprintf(format, args...))
}

func (r *runReport) detailf(format string, args ...interface{}) {
	fmt.Fprintf(&r.detailed, format, args...)
}

// outcome records a command outcome with its captured output.
func (r *runReport) outcome(o domain.CommandOutcome) {
	r.logf("%s\nStdOut: %s\nStdErr: %s\n", o.Description, o.Stdout, o.Stderr)
}

// finish seals the report. The brief status suffix and Succeeded are set
// from the same flag, so the two can never disagree.
func (r *runReport) finish(ok bool) domain.BackupResult {
	if ok {
		r.brief += " OK"
	} else {
		r.brief += " FAILED"
	}

	r.detailf("\nElapsed time: %s", FormatTimeDelta(time.Since(r.start)))
	r.logf("%s", r.detailed.String())

	status := "ERROR"
	if ok {
		status = "SUCCESS"
	}
	r.logf("Backup finished with status %s", status)

	return domain.BackupResult{
		Succeeded:      ok,
		BriefStatus:    r.brief,
		DetailedStatus: r.detailed.String(),
	}
}

// FormatTimeDelta renders a duration as "x day(s), y hour(s), z min, s sec",
// omitting the larger units while they are zero.
func FormatTimeDelta(d time.Duration) string {
	total := int64(d.Seconds())
	sec := total % 60
	min := (total / 60) % 60
	hours := (total / 3600) % 24
	days := total / 86400

	switch {
	case days != 0:
		return fmt.Sprintf("%d day(s), %d hour(s), %d min, %d sec", days, hours, min, sec)
	case hours != 0:
		return fmt.Sprintf("%d hour(s), %d min, %d sec", hours, min, sec)
	case min != 0:
		return fmt.Sprintf("%d min, %d sec", min, sec)
	default:
		return fmt.Sprintf("%d sec", sec)
	}
}

func prettySize(n int64) string {
	num := float64(n)
	for _, unit := range []string{"bytes", "KB", "MB", "GB"} {
		if num < 1024.0 && num > -1024.0 {
			return fmt.Sprintf("%3.1f%s", num, unit)
		}
		num /= 1024.0
	}
	return fmt.Sprintf("%3.1fTB", num)
}

func prettyFileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return prettySize(info.Size())
}
