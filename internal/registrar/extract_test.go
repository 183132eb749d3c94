package registrar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverbin/mediavault/internal/common"
)

type fakeLookup map[string]string

func (f fakeLookup) ObjectType(_ context.Context, id string) (string, error) {
	typ, ok := f[id]
	if !ok {
		return "", common.ErrorNotFound
	}
	return typ, nil
}

func TestFromObjectChanges(t *testing.T) {
	res := &TxResult{
		ObjectChanges: []ObjectChange{
			{Kind: "mutated", ObjectType: "0xpkg::registry::Submission", ObjectID: "0xwrongkind"},
			{Kind: "created", ObjectType: "0xpkg::coin::Coin", ObjectID: "0xcoin"},
			{Kind: "created", ObjectType: "0xpkg::registry::Submission", ObjectID: "0xsub"},
		},
	}

	id, ok := FromObjectChanges(context.Background(), nil, res)
	require.True(t, ok)
	assert.Equal(t, "0xsub", id)

	_, ok = FromObjectChanges(context.Background(), nil, &TxResult{})
	assert.False(t, ok)
}

func TestFromEvents(t *testing.T) {
	res := &TxResult{
		Events: []Event{
			{Type: "0xpkg::registry::Registered", ParsedJSON: map[string]any{"blob_id": "x"}},
			{Type: "0xpkg::registry::Submitted", ParsedJSON: map[string]any{"submission_id": "0xsub"}},
		},
	}

	id, ok := FromEvents(context.Background(), nil, res)
	require.True(t, ok)
	assert.Equal(t, "0xsub", id)

	// Non-string payload value is not trusted.
	res = &TxResult{Events: []Event{{ParsedJSON: map[string]any{"submission_id": 42}}}}
	_, ok = FromEvents(context.Background(), nil, res)
	assert.False(t, ok)
}

func TestFromCreatedRefetch(t *testing.T) {
	lookup := fakeLookup{
		"0xcoin": "0xpkg::coin::Coin",
		"0xsub":  "0xpkg::registry::Submission",
	}
	res := &TxResult{Created: []string{"0xunknown", "0xcoin", "0xsub"}}

	id, ok := FromCreatedRefetch(context.Background(), lookup, res)
	require.True(t, ok)
	assert.Equal(t, "0xsub", id)

	_, ok = FromCreatedRefetch(context.Background(), nil, res)
	assert.False(t, ok)
}

func TestFromMutatedRefetch(t *testing.T) {
	lookup := fakeLookup{"0xshared": "0xpkg::registry::Submission"}
	res := &TxResult{Mutated: []string{"0xshared"}}

	id, ok := FromMutatedRefetch(context.Background(), lookup, res)
	require.True(t, ok)
	assert.Equal(t, "0xshared", id)
}

func TestExtractorPriorityOrder(t *testing.T) {
	// Object change wins over event payload when both are present.
	ledger := newFakeLedger()
	ledger.results["finalize_submission_with_blob"] = &TxResult{
		Digest: "0xd",
		ObjectChanges: []ObjectChange{
			{Kind: "created", ObjectType: "0xpkg::registry::Submission", ObjectID: "0xfromchange"},
		},
		Events: []Event{{ParsedJSON: map[string]any{"submission_id": "0xfromevent"}}},
	}
	r := New(ledger, 100, testLogger())

	res, err := r.FinalizeSubmission(context.Background(), "0xintent")
	require.NoError(t, err)
	assert.Equal(t, "0xfromchange", res.SubmissionID)

	// With no object change, the event payload is used.
	ledger.results["finalize_submission_with_blob"] = &TxResult{
		Digest: "0xd",
		Events: []Event{{ParsedJSON: map[string]any{"submission_id": "0xfromevent"}}},
	}
	res, err = r.FinalizeSubmission(context.Background(), "0xintent")
	require.NoError(t, err)
	assert.Equal(t, "0xfromevent", res.SubmissionID)

	// With neither, the created-object re-fetch kicks in.
	ledger.objectTypes["0xcreated"] = "0xpkg::registry::Submission"
	ledger.results["finalize_submission_with_blob"] = &TxResult{
		Digest:  "0xd",
		Created: []string{"0xcreated"},
	}
	res, err = r.FinalizeSubmission(context.Background(), "0xintent")
	require.NoError(t, err)
	assert.Equal(t, "0xcreated", res.SubmissionID)

	// Last resort: mutated-object re-fetch.
	ledger.objectTypes["0xmutated"] = "0xpkg::registry::Submission"
	ledger.results["finalize_submission_with_blob"] = &TxResult{
		Digest:  "0xd",
		Mutated: []string{"0xmutated"},
	}
	res, err = r.FinalizeSubmission(context.Background(), "0xintent")
	require.NoError(t, err)
	assert.Equal(t, "0xmutated", res.SubmissionID)

	// Nothing extractable is an error.
	ledger.results["finalize_submission_with_blob"] = &TxResult{Digest: "0xd"}
	_, err = r.FinalizeSubmission(context.Background(), "0xintent")
	assert.Error(t, err)
}

func TestExtractIntentID_FallbackToSingleCreated(t *testing.T) {
	id, ok := extractIntentID(&TxResult{Created: []string{"0xonly"}})
	require.True(t, ok)
	assert.Equal(t, "0xonly", id)

	_, ok = extractIntentID(&TxResult{Created: []string{"0xa", "0xb"}})
	assert.False(t, ok)
}
