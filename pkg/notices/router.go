package notices

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// The router maps an inbound classification key onto one of the closed set of
// notice variants and deserializes the raw body against it. Unknown keys and
// structurally invalid bodies are classification errors; the router never
// coerces a message to a generic type.
// ====================================================================================

// ClassificationError reports that a raw message could not be mapped onto a
// known notice variant. These are terminal: the coordinator routes them to the
// dead-letter queue without retrying.
type ClassificationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed for key %q: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed for key %q: %s", e.Key, e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// IsClassificationError checks whether err is (or wraps) a ClassificationError.
func IsClassificationError(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce)
}

// sourceAliases is the closed alias set. Keys are compared lower-cased, so the
// match is case-insensitive regardless of the feed's casing convention.
var sourceAliases = map[string]types.Source{
	"opentender":    types.SourceOpenTender,
	"open-tender":   types.SourceOpenTender,
	"tender":        types.SourceOpenTender,
	"award":         types.SourceAward,
	"contractaward": types.SourceAward,
	"amendment":     types.SourceAmendment,
	"corrigendum":   types.SourceAmendment,
}

// Router classifies raw queue payloads into typed notices.
type Router struct {
	logger zerolog.Logger
}

// NewRouter creates a Router.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		logger: logger.With().Str("component", "Router").Logger(),
	}
}

// ResolveSource maps a classification key onto a Source, case-insensitively.
// An empty or unresolvable key returns SourceUnknown and an error.
func ResolveSource(key string) (types.Source, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return types.SourceUnknown, &ClassificationError{Key: key, Reason: "empty classification key"}
	}
	source, ok := sourceAliases[strings.ToLower(trimmed)]
	if !ok {
		return types.SourceUnknown, &ClassificationError{Key: key, Reason: "unknown classification key"}
	}
	return source, nil
}

// Classify deserializes body into the notice variant bound to key.
// Every failure is a ClassificationError; the caller decides routing.
func (r *Router) Classify(body []byte, key string) (types.Notice, error) {
	source, err := ResolveSource(key)
	if err != nil {
		r.logger.Debug().Str("classification_key", key).Msg("Rejected message with unresolvable classification key.")
		return nil, err
	}

	var notice types.Notice
	switch source {
	case types.SourceOpenTender:
		notice = &types.OpenTenderNotice{}
	case types.SourceAward:
		notice = &types.AwardNotice{}
	case types.SourceAmendment:
		notice = &types.AmendmentNotice{}
	default:
		// The alias map is the only producer of Source values here, so this
		// arm is unreachable unless a variant is added without a case above.
		return nil, &ClassificationError{Key: key, Reason: fmt.Sprintf("no variant bound to source %q", source)}
	}

	if err := json.Unmarshal(body, notice); err != nil {
		return nil, &ClassificationError{Key: key, Reason: "body does not deserialize against bound variant", Err: err}
	}
	if notice.Common().TenderID == "" {
		return nil, &ClassificationError{Key: key, Reason: "missing tender identifier"}
	}

	r.logger.Debug().
		Str("classification_key", key).
		Str("source", string(source)).
		Str("tender_id", notice.Common().TenderID.String()).
		Msg("Message classified.")
	return notice, nil
}
