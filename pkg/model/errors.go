package model

import "github.com/m-mizutani/goerr/v2"

// Error tags categorize failures so that callers can map them to their own
// escalation policy without matching on message strings.
var (
	// TagNotFound marks a missing history, explanation or blob.
	TagNotFound = goerr.NewTag("not_found")
	// TagInvalidID marks a malformed identifier, rejected before any store access.
	TagInvalidID = goerr.NewTag("invalid_id")
	// TagMissingContext marks an authenticated request lacking a required history ID.
	TagMissingContext = goerr.NewTag("missing_context")
	// TagLowConfidence marks a classification below the configured threshold.
	TagLowConfidence = goerr.NewTag("low_confidence")
	// TagGenerationFailure marks an explanation method that produced no result.
	TagGenerationFailure = goerr.NewTag("generation_failure")
	// TagStorage marks an I/O failure on the blob or metadata store.
	TagStorage = goerr.NewTag("storage")
)

var (
	ErrHistoryNotFound     = goerr.New("history not found", goerr.T(TagNotFound))
	ErrExplanationNotFound = goerr.New("explanation not found", goerr.T(TagNotFound))
	ErrBlobNotFound        = goerr.New("blob not found", goerr.T(TagNotFound))
	ErrInvalidBlobID       = goerr.New("invalid blob ID", goerr.T(TagInvalidID))
	ErrUnknownMethod       = goerr.New("unknown explanation method", goerr.T(TagNotFound))

	// ErrHistoryRequired is returned when an authenticated request arrives
	// without a history ID. It is raised before any blob is written so that
	// no unreferenced artifact is ever created.
	ErrHistoryRequired = goerr.New("history ID is required for authenticated requests", goerr.T(TagMissingContext))
)
