package feeds

import (
	"errors"
	"fmt"
)

// GenerationError wraps any failure during rank computation with the
// request identity and the underlying cause message. The cause's concrete
// type is deliberately not carried: infrastructure failure types must not
// leak through the feed API.
type GenerationError struct {
	Viewer string // viewer DID, or "trending"
	Page   int
	Cause  string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("feed generation failed for %s (page %d): %s", e.Viewer, e.Page, e.Cause)
}

// newGenerationError captures err's message only.
func newGenerationError(viewer string, page int, err error) error {
	return &GenerationError{Viewer: viewer, Page: page, Cause: err.Error()}
}

// IsGenerationError checks if err is a feed generation failure.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
