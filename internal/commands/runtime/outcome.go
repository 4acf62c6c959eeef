package runtime

import (
	"fmt"

	apperr "github.com/BogBogdan/ot-node/internal/pkg/errors"
)

type OutcomeKind int

const (
	// OutcomeContinue ends the chain. The command is removed and a still-open operation
	// is completed.
	OutcomeContinue OutcomeKind = iota
	// OutcomeAdvance replaces the command with the next name in its sequence.
	OutcomeAdvance
	// OutcomeRetry reschedules the same command while it has retries left.
	OutcomeRetry
	// OutcomeFail marks the operation failed. Nothing further in the sequence runs.
	OutcomeFail
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeAdvance:
		return "advance"
	case OutcomeRetry:
		return "retry"
	case OutcomeFail:
		return "fail"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is what a handler hands back to the executor.
type Outcome struct {
	Kind OutcomeKind
	// Data is merged into the successor on Advance and replaces the stored payload on Retry.
	Data      map[string]any
	ErrorKind string
	Message   string
	Err       error
}

func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

func Advance(data map[string]any) Outcome {
	return Outcome{Kind: OutcomeAdvance, Data: data}
}

func Retry(err error) Outcome {
	return Outcome{Kind: OutcomeRetry, Err: err, Message: errMessage(err)}
}

// RetryWith retries with an updated payload, so the next attempt can resume where this
// one stopped.
func RetryWith(err error, data map[string]any) Outcome {
	return Outcome{Kind: OutcomeRetry, Err: err, Message: errMessage(err), Data: data}
}

func Fail(kind, message string) Outcome {
	return Outcome{Kind: OutcomeFail, ErrorKind: kind, Message: message}
}

// FromError retries transient errors and fails the rest with the error's kind, or defKind.
func FromError(err error, defKind string) Outcome {
	if err == nil {
		return Continue()
	}
	if apperr.IsRetryable(err) {
		o := Retry(err)
		o.ErrorKind = apperr.KindOf(err, defKind)
		return o
	}
	return Outcome{
		Kind:      OutcomeFail,
		ErrorKind: apperr.KindOf(err, defKind),
		Message:   err.Error(),
		Err:       err,
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
