package jobs

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-syndication/core"
)

// permanentError marks a failure that re-running the job cannot fix. It
// satisfies job.NonRetryableError, so go-job retry policies dead-letter it.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }

func (e permanentError) Unwrap() error { return e.err }

func (e permanentError) NonRetryable() bool { return true }

func (e permanentError) NonRetryableReason() string { return e.err.Error() }

// Permanent wraps err so the runner dead-letters the job instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

var _ job.NonRetryableError = permanentError{}

func jobsBadInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.SyndicationErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func jobsWrapBadInput(source error, message string, metadata map[string]any) error {
	if source == nil {
		return nil
	}
	err := goerrors.Wrap(source, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.SyndicationErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func jobsInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.SyndicationErrorInternal)
}
