package models

import "context"

// RelayerService is the main application surface served over the API.
type RelayerService interface {
	// Start runs the relayer loop until the context is cancelled.
	Start(ctx context.Context)

	// RunOnce executes a single collect/validate/submit cycle.
	RunOnce(ctx context.Context) (*RunReport, error)

	// LastRun returns the report of the most recent run, or nil.
	LastRun() *RunReport

	// PolicyMirror returns the off-chain mirror row for an address.
	PolicyMirror(address string) (*PolicyMirror, error)

	// ForceReauthorization deactivates a user's authorizations so the
	// next charge requires a fresh signature.
	ForceReauthorization(address string) (int64, error)
}

// APIServer serves the HTTP status API.
type APIServer interface {
	Start()
	Shutdown() error
}

// AlertService delivers run outcomes to the operator.
type AlertService interface {
	RunCompleted(report *RunReport)
}
