package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrTemporary           = errors.New("temporary failure")
	ErrRecordUnreadable    = errors.New("record unreadable")
	ErrDownloadFailed      = errors.New("download failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrParsingFailed       = errors.New("document parsing failed")
	ErrParsingTimeout      = errors.New("document parsing timed out")
	ErrStorageWrite        = errors.New("storage write failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ParsingJobError is a terminal parsing job outcome. Message holds the provider's
// error text unchanged for FAILED jobs.
type ParsingJobError struct {
	JobID    string
	Status   ParsingStatus
	Attempts int
	Message  string
}

func (e *ParsingJobError) Error() string {
	if e == nil {
		return "parsing job error"
	}
	if e.Status == ParsingTimeout {
		return fmt.Sprintf("parsing job %s: %s after %d attempts", e.JobID, ParsingTimeout, e.Attempts)
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("parsing job %s: %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("parsing job %s: %s: %s", e.JobID, e.Status, e.Message)
}

func (e *ParsingJobError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrParsingTimeout:
		return e.Status == ParsingTimeout
	case ErrParsingFailed:
		return e.Status == ParsingFailed
	default:
		return false
	}
}

// FailureMessage renders the errorMessage written back to the record store for a failed run.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var jobErr *ParsingJobError
	if errors.As(err, &jobErr) {
		if jobErr.Status == ParsingFailed && strings.TrimSpace(jobErr.Message) != "" {
			return jobErr.Message
		}
		return jobErr.Error()
	}

	switch {
	case IsKind(err, ErrDownloadFailed):
		return ErrDownloadFailed.Error()
	case IsKind(err, ErrUnsupportedFileType):
		return err.Error()
	case IsKind(err, ErrStorageWrite):
		return "failed to store recommendations"
	default:
		return err.Error()
	}
}
