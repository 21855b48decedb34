// Package donation submits signed donation requests to the remote API and
// normalizes its responses into outcomes.
package donation

import "fmt"

// Kind tags a donation outcome.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindAlreadyDonated Kind = "already_donated"
	KindError          Kind = "error"
	// KindSkipped is produced by the orchestrator for sources that equal the
	// destination. The client never returns it.
	KindSkipped Kind = "skipped"
)

// Default outcome messages.
const (
	DefaultSuccessMessage        = "Rewards consolidated successfully"
	DefaultAlreadyDonatedMessage = "Already donated"
)

// Item is one signed donation request in a batch.
type Item struct {
	SourceAddress string `json:"sourceAddress" validate:"required"`
	Signature     string `json:"signature" validate:"required,hexadecimal"`
	SourceIndex   int    `json:"sourceIndex" validate:"gte=0"`
}

// Outcome is the result of one donation attempt.
type Outcome struct {
	Kind                  Kind   `json:"kind"`
	SourceAddress         string `json:"sourceAddress"`
	SourceIndex           int    `json:"sourceIndex"`
	SolutionsConsolidated int64  `json:"solutionsConsolidated,omitempty"`
	Message               string `json:"message,omitempty"`
}

// Success returns a successful outcome.
func Success(solutions int64, message string) Outcome {
	if message == "" {
		message = DefaultSuccessMessage
	}
	if solutions < 0 {
		solutions = 0
	}
	return Outcome{Kind: KindSuccess, SolutionsConsolidated: solutions, Message: message}
}

// AlreadyDonated returns the outcome for a source that already donated.
func AlreadyDonated(message string) Outcome {
	if message == "" {
		message = DefaultAlreadyDonatedMessage
	}
	return Outcome{Kind: KindAlreadyDonated, Message: message}
}

// Failure returns an error outcome.
func Failure(message string) Outcome {
	return Outcome{Kind: KindError, Message: message}
}

// Skipped returns an outcome for a source that was not submitted.
func Skipped(message string) Outcome {
	return Outcome{Kind: KindSkipped, Message: message}
}

// For tags the outcome with the source it belongs to.
func (o Outcome) For(source string, index int) Outcome {
	o.SourceAddress = source
	o.SourceIndex = index
	return o
}

// Succeeded reports whether the outcome counts toward the successful total.
// An already-donated source is not an error.
func (o Outcome) Succeeded() bool {
	return o.Kind == KindSuccess || o.Kind == KindAlreadyDonated
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("#%d success: %d solutions", o.SourceIndex, o.SolutionsConsolidated)
	default:
		return fmt.Sprintf("#%d %s: %s", o.SourceIndex, o.Kind, o.Message)
	}
}
