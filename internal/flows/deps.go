package flows

// Deps groups flow dependency sets. Root engine builds this once and delegates
// to the matching flow implementation.
type Deps struct {
	Attempt  AttemptDeps
	Recovery RecoveryDeps
	Progress ProgressDeps
}
