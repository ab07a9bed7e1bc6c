package constants

// AttemptStatus is the canonical status for rows in verification_attempts.
type AttemptStatus string

// Stable values (store these exact strings in DB).
const (
	AttemptStatusRunning AttemptStatus = "RUNNING" // in progress
	AttemptStatusOK      AttemptStatus = "OK"      // verdict produced
	AttemptStatusFailed  AttemptStatus = "FAILED"  // terminal failure, no verdict
)
