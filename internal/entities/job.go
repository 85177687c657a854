package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidTransition = errors.New("invalid job phase transition")
)

// Phase is the lifecycle state of a Job.
type Phase string

const (
	PhasePending    Phase = "Pending"
	PhaseProcessing Phase = "Processing"
	PhaseCompleted  Phase = "Completed"
	PhaseFailed     Phase = "Failed"
)

// Terminal reports whether no further transition is allowed out of p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

func (p Phase) Valid() bool {
	switch p {
	case PhasePending, PhaseProcessing, PhaseCompleted, PhaseFailed:
		return true
	}
	return false
}

// Job is the status record kept for one uploaded CSV. RequestID doubles as
// the document key in the blob store.
type Job struct {
	RequestID string `json:"requestId"`
	Phase     Phase  `json:"phase"`
	Reason    string `json:"reason,omitempty"` // only set for PhaseFailed
}

func NewJob(requestID string) Job {
	return Job{RequestID: requestID, Phase: PhasePending}
}

// Status renders the human readable status string exposed over HTTP.
func (j Job) Status() string {
	if j.Phase == PhaseFailed {
		return fmt.Sprintf("%s: %s", PhaseFailed, j.Reason)
	}
	return string(j.Phase)
}

// Advance returns a copy of j moved to next. Reason is kept only for failures.
func (j Job) Advance(next Phase, reason string) (Job, error) {
	if !allowed(j.Phase, next) {
		return j, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Phase, next)
	}
	j.Phase = next
	j.Reason = ""
	if next == PhaseFailed {
		j.Reason = reason
	}
	return j, nil
}

func allowed(from, to Phase) bool {
	switch from {
	case PhasePending:
		return to == PhaseProcessing || to == PhaseFailed
	case PhaseProcessing:
		return to == PhaseCompleted || to == PhaseFailed
	default:
		return false
	}
}

// NewRequestID returns 32 lowercase hex characters.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DocumentKey is the blob store key of the CSV document for a request.
func DocumentKey(requestID string) string {
	return requestID + ".csv"
}
