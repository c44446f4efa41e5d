package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanValidateLengthCeiling(t *testing.T) {
	plan := &Plan{MainText: strings.Repeat("a", MaxPostLength)}
	require.NoError(t, plan.Validate())

	plan.MainText = strings.Repeat("a", MaxPostLength+1)
	require.Error(t, plan.Validate())
}

func TestPlanValidateCountsRunesNotBytes(t *testing.T) {
	// 500 multibyte characters are exactly at the ceiling
	plan := &Plan{MainText: strings.Repeat("あ", MaxPostLength)}
	assert.NoError(t, plan.Validate())

	plan.MainText = strings.Repeat("あ", MaxPostLength+1)
	assert.Error(t, plan.Validate())
}

func TestPlanValidateChecksEveryComment(t *testing.T) {
	plan := &Plan{
		MainText: "fine",
		Comments: CommentList{
			{Order: 1, Text: "fine"},
			{Order: 2, Text: strings.Repeat("b", MaxPostLength+1)},
		},
	}
	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comment 2")
}

func TestPlanValidateRequiresMainText(t *testing.T) {
	plan := &Plan{}
	assert.Error(t, plan.Validate())
}

func TestPlanTransitions(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{PlanStatusDraft, PlanStatusApproved, true},
		{PlanStatusDraft, PlanStatusRejected, true},
		{PlanStatusDraft, PlanStatusPosted, false},
		{PlanStatusApproved, PlanStatusScheduled, true},
		{PlanStatusApproved, PlanStatusApproved, true}, // re-approval after a failed job
		{PlanStatusApproved, PlanStatusDraft, false},
		{PlanStatusScheduled, PlanStatusPosted, true},
		{PlanStatusPosted, PlanStatusDraft, false},
		{PlanStatusPosted, PlanStatusApproved, false},
		{PlanStatusRejected, PlanStatusApproved, false},
	}
	for _, tc := range cases {
		plan := &Plan{Status: tc.from}
		assert.Equal(t, tc.allowed, plan.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCommentListSorted(t *testing.T) {
	list := CommentList{
		{Order: 3, Text: "third"},
		{Order: 1, Text: "first"},
		{Order: 2, Text: "second"},
	}
	sorted := list.Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, "first", sorted[0].Text)
	assert.Equal(t, "second", sorted[1].Text)
	assert.Equal(t, "third", sorted[2].Text)

	// Source order untouched
	assert.Equal(t, 3, list[0].Order)
}

func TestCommentListRoundTrip(t *testing.T) {
	list := CommentList{
		{Order: 1, Text: "one"},
		{Order: 2, Text: "two"},
	}

	value, err := list.Value()
	require.NoError(t, err)

	var decoded CommentList
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, list, decoded)
}

func TestCommentListScanEmpty(t *testing.T) {
	var decoded CommentList
	require.NoError(t, decoded.Scan(nil))
	assert.Empty(t, decoded)

	require.NoError(t, decoded.Scan(""))
	assert.Empty(t, decoded)
}

func TestCommentListScanRejectsUnsupportedType(t *testing.T) {
	var decoded CommentList
	err := decoded.Scan(42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot scan int")
}
