package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalysis(t *testing.T) *MatchAnalysis {
	t.Helper()

	analysis, err := NewMatchAnalysis(uuid.New(), uuid.New(), "Initech", "Staff Engineer")
	require.NoError(t, err)

	analysis.MatchedSkills = []SkillMatch{
		{Name: "Go", Importance: SkillImportanceCritical, Confidence: 0.95},
	}
	analysis.PartialMatches = []SkillMatch{
		{Name: "Kubernetes", Importance: SkillImportanceHigh, Confidence: 0.6},
	}
	analysis.MissingSkills = []SkillMatch{
		{Name: "Terraform", Importance: SkillImportanceCritical, Confidence: 0.8},
		{Name: "GraphQL", Importance: SkillImportanceLow, Confidence: 0.7},
	}
	analysis.BaselineScore = 60
	analysis.BaselineTotalNeeded = 3
	return analysis
}

func TestMatchAnalysisAddSkill(t *testing.T) {
	t.Parallel()

	t.Run("moves missing skill to matched", func(t *testing.T) {
		t.Parallel()

		analysis := newTestAnalysis(t)
		skill, err := analysis.AddSkill("Terraform")
		require.NoError(t, err)

		assert.Equal(t, "Terraform", skill.Name)
		assert.Len(t, analysis.MatchedSkills, 2)
		assert.Len(t, analysis.MissingSkills, 1)
	})

	t.Run("moves partial match to matched", func(t *testing.T) {
		t.Parallel()

		analysis := newTestAnalysis(t)
		skill, err := analysis.AddSkill("Kubernetes")
		require.NoError(t, err)

		assert.Equal(t, "Kubernetes", skill.Name)
		assert.Empty(t, analysis.PartialMatches)
		assert.Len(t, analysis.MatchedSkills, 2)
	})

	t.Run("unknown skill returns ErrSkillNotFound", func(t *testing.T) {
		t.Parallel()

		analysis := newTestAnalysis(t)
		_, err := analysis.AddSkill("COBOL")
		assert.ErrorIs(t, err, ErrSkillNotFound)
	})

	t.Run("baseline bookkeeping is never recomputed", func(t *testing.T) {
		t.Parallel()

		analysis := newTestAnalysis(t)
		_, err := analysis.AddSkill("Terraform")
		require.NoError(t, err)
		_, err = analysis.AddSkill("Kubernetes")
		require.NoError(t, err)

		assert.Equal(t, 60, analysis.BaselineScore)
		assert.Equal(t, 3, analysis.BaselineTotalNeeded)
	})
}

func TestSkillImportanceIsRelevant(t *testing.T) {
	t.Parallel()

	assert.True(t, SkillImportanceCritical.IsRelevant())
	assert.True(t, SkillImportanceHigh.IsRelevant())
	assert.False(t, SkillImportanceMedium.IsRelevant())
	assert.False(t, SkillImportanceLow.IsRelevant())
}
