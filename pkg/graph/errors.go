package graph

import "fmt"

// NotFoundError reports that the platform knows nothing about the
// requested object: deleted, private, or never existed. It is terminal
// for the object but never for the crawl.
type NotFoundError struct {
	ID      string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found: %s", e.ID, e.Message)
}

// MigratedError reports that a page id has been migrated platform-side.
// The caller is expected to close the old registry row, seed the new id
// and retry against it.
type MigratedError struct {
	OldID string
	NewID string
}

func (e *MigratedError) Error() string {
	return fmt.Sprintf("page %s migrated to %s", e.OldID, e.NewID)
}

// PlatformError is any other error reported by the platform itself.
// Terminal for the calling job.
type PlatformError struct {
	Message string
	Code    int
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error (code %d): %s", e.Code, e.Message)
}

// TooManyErrorsError reports that the escalating backoff ceiling was
// exhausted. The calling job aborts; the process does not.
type TooManyErrorsError struct {
	Count int
}

func (e *TooManyErrorsError) Error() string {
	return fmt.Sprintf("too many consecutive request errors: %d", e.Count)
}

// MissingFieldError reports a mandatory field absent from an API response
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("mandatory field %q missing from response", e.Field)
}
