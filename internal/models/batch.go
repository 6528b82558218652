package models

import "math/big"

// BatchEntry is one accepted authorization plus its parsed premium amount.
type BatchEntry struct {
	Authorization *Authorization
	Amount        *big.Int
}

// Batch is the transaction-scoped list of accepted authorizations for one
// submission attempt. It is never persisted; the next run rebuilds it from
// fresh chain state.
type Batch struct {
	Entries []*BatchEntry
	// Total is the summed premium value the batch transaction must carry.
	Total *big.Int
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{Total: new(big.Int)}
}

// Add appends an entry and accumulates its amount into the total.
func (b *Batch) Add(auth *Authorization, amount *big.Int) {
	b.Entries = append(b.Entries, &BatchEntry{Authorization: auth, Amount: amount})
	b.Total = new(big.Int).Add(b.Total, amount)
}

// Empty reports whether the batch has no entries.
func (b *Batch) Empty() bool {
	return len(b.Entries) == 0
}

// Rejection records why a candidate was excluded from a batch.
type Rejection struct {
	UserAddress string `json:"user_address"`
	Reason      string `json:"reason"`
}

// RunState is the lifecycle state of one relayer run.
type RunState string

const (
	RunCollecting RunState = "COLLECTING"
	RunValidating RunState = "VALIDATING"
	RunSubmitting RunState = "SUBMITTING"

	// Terminal states.
	RunEmptyDone RunState = "EMPTY_DONE"
	RunConfirmed RunState = "CONFIRMED"
	RunReverted  RunState = "REVERTED"
	RunTimedOut  RunState = "TIMED_OUT"
	RunAborted   RunState = "ABORTED"
)

// RunReport summarizes one relayer run for the status API and operator alerts.
type RunReport struct {
	ID          string      `json:"id"`
	StartedAt   int64       `json:"started_at"`
	FinishedAt  int64       `json:"finished_at"`
	State       RunState    `json:"state"`
	Candidates  int         `json:"candidates"`
	Accepted    int         `json:"accepted"`
	Rejections  []Rejection `json:"rejections,omitempty"`
	TotalWei    string      `json:"total_wei,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	Error       string      `json:"error,omitempty"`
}
