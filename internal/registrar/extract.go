package registrar

import (
	"context"
	"strings"
)

// Type-tag suffixes of the registry contract's objects.
const (
	submissionTypeSuffix = "::registry::Submission"
	intentTypeSuffix     = "::registry::RegistrationIntent"
)

// ObjectTypeLookup is the slice of Ledger needed by the re-fetch
// extractors.
type ObjectTypeLookup interface {
	ObjectType(ctx context.Context, objectID string) (string, error)
}

// SubmissionExtractor tries one strategy for locating the created
// submission object id in a transaction result. Extractors are pure with
// respect to the result; the re-fetch strategies additionally consult the
// ledger through the lookup.
type SubmissionExtractor func(ctx context.Context, lookup ObjectTypeLookup, res *TxResult) (string, bool)

// DefaultExtractors returns the strategies in priority order: explicit
// object-change type match, event payload field, re-fetch of created
// object types, re-fetch of mutated object types.
func DefaultExtractors() []SubmissionExtractor {
	return []SubmissionExtractor{
		FromObjectChanges,
		FromEvents,
		FromCreatedRefetch,
		FromMutatedRefetch,
	}
}

// FromObjectChanges scans the object-change list for a created object of
// the submission type.
func FromObjectChanges(_ context.Context, _ ObjectTypeLookup, res *TxResult) (string, bool) {
	for _, ch := range res.ObjectChanges {
		if ch.Kind == "created" && strings.HasSuffix(ch.ObjectType, submissionTypeSuffix) && ch.ObjectID != "" {
			return ch.ObjectID, true
		}
	}
	return "", false
}

// FromEvents scans emitted events for a submission_id payload field.
func FromEvents(_ context.Context, _ ObjectTypeLookup, res *TxResult) (string, bool) {
	for _, ev := range res.Events {
		if id, ok := ev.ParsedJSON["submission_id"].(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// FromCreatedRefetch re-fetches the types of the effects' created objects
// and picks the submission. Lookup failures skip to the next candidate.
func FromCreatedRefetch(ctx context.Context, lookup ObjectTypeLookup, res *TxResult) (string, bool) {
	return refetchMatch(ctx, lookup, res.Created)
}

// FromMutatedRefetch is the last resort: some contract versions reuse a
// shared submission object, which shows up as mutated rather than created.
func FromMutatedRefetch(ctx context.Context, lookup ObjectTypeLookup, res *TxResult) (string, bool) {
	return refetchMatch(ctx, lookup, res.Mutated)
}

func refetchMatch(ctx context.Context, lookup ObjectTypeLookup, ids []string) (string, bool) {
	if lookup == nil {
		return "", false
	}
	for _, id := range ids {
		typ, err := lookup.ObjectType(ctx, id)
		if err != nil {
			continue
		}
		if strings.HasSuffix(typ, submissionTypeSuffix) {
			return id, true
		}
	}
	return "", false
}

// extractIntentID finds the phase-1 intent object in a transaction result.
func extractIntentID(res *TxResult) (string, bool) {
	for _, ch := range res.ObjectChanges {
		if ch.Kind == "created" && strings.HasSuffix(ch.ObjectType, intentTypeSuffix) && ch.ObjectID != "" {
			return ch.ObjectID, true
		}
	}
	// Fall back to the bare created list when the node omits typed
	// object changes.
	if len(res.Created) == 1 {
		return res.Created[0], true
	}
	return "", false
}
