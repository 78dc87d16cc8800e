package domain

// BackupResult is the outcome of a single backup or download procedure run.
// BriefStatus is a one-line summary ("[Backup] <hint> OK" or "... FAILED"),
// DetailedStatus a multi-line transcript for diagnosis. The two never
// disagree with Succeeded.
type BackupResult struct {
	Succeeded      bool
	BriefStatus    string
	DetailedStatus string
}

// CommandOutcome captures one external command invocation. Succeeded reflects
// a zero process exit code; Stdout and Stderr hold the full buffered output.
type CommandOutcome struct {
	Succeeded   bool
	Description string
	Stdout      string
	Stderr      string
}
