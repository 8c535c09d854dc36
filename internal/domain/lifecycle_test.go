package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Next(t *testing.T) {
	tests := []struct {
		from Status
		want Status
		ok   bool
	}{
		{StatusReported, StatusMitigating, true},
		{StatusMitigating, StatusResolved, true},
		{StatusResolved, StatusPostmortem, true},
		{StatusPostmortem, StatusClosed, true},
		{StatusClosed, "", false},
		{"unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, ok := tt.from.Next()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_AdvanceLabel(t *testing.T) {
	assert.Equal(t, "Start Mitigating", StatusReported.AdvanceLabel())
	assert.Equal(t, "Mark Resolved", StatusMitigating.AdvanceLabel())
	assert.Equal(t, "Start Postmortem", StatusResolved.AdvanceLabel())
	assert.Equal(t, "Complete Postmortem", StatusPostmortem.AdvanceLabel())
	assert.Empty(t, StatusClosed.AdvanceLabel())
}

func TestCanTransition_OnlyDirectSuccessor(t *testing.T) {
	statuses := Statuses()
	for i, from := range statuses {
		for j, to := range statuses {
			assert.Equal(t, j == i+1, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Stage(t *testing.T) {
	assert.Equal(t, 1, StatusReported.Stage())
	assert.Equal(t, 5, StatusClosed.Stage())
	assert.Equal(t, 0, Status("archived").Stage())
	assert.False(t, Status("archived").IsValid())
}

func TestStatus_Sections(t *testing.T) {
	assert.True(t, StatusReported.HasSection(SectionDuplicate))
	assert.False(t, StatusReported.HasSection(SectionPostmortem))
	assert.True(t, StatusReported.HasSection(SectionAdvance))

	assert.True(t, StatusPostmortem.HasSection(SectionPostmortem))
	assert.False(t, StatusPostmortem.HasSection(SectionDuplicate))

	assert.True(t, StatusClosed.HasSection(SectionPostmortem))
	assert.False(t, StatusClosed.HasSection(SectionAdvance))
	assert.False(t, StatusClosed.HasSection(SectionAddUpdate))
}

func TestStatus_PostmortemEditable(t *testing.T) {
	assert.False(t, StatusResolved.PostmortemEditable())
	assert.True(t, StatusPostmortem.PostmortemEditable())
	assert.False(t, StatusClosed.PostmortemEditable())
}
