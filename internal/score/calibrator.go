// Package score implements the ATS match-score calibration used by the
// analysis and skill-addition jobs. All functions are pure; persistence and
// job orchestration live elsewhere.
package score

import (
	"math"

	"github.com/pathwise/pathwise-api/internal/domain"
)

// Blend weights for the composite score. The skill-match component carries
// half the weight; keyword density and experience fit carry a fifth each.
const (
	skillWeight      = 0.5
	keywordWeight    = 0.2
	experienceWeight = 0.2
)

// partialCredit is the weight a partially matched skill contributes
// relative to a full match.
const partialCredit = 0.5

// CalculateScore computes the composite match score for an analysis,
// rounded and clamped to [0,100].
//
// Only critical and high-importance skills participate in the skill-match
// component: (matched + 0.5*partial) / total * 100. When the analysis
// contains no relevant skills at all, the skill component is zero rather
// than undefined.
func CalculateScore(analysis *domain.MatchAnalysis) int {
	matched := countRelevant(analysis.MatchedSkills)
	partial := countRelevant(analysis.PartialMatches)
	missing := countRelevant(analysis.MissingSkills)

	total := matched + partial + missing

	var skillScore float64
	if total > 0 {
		skillScore = (float64(matched) + partialCredit*float64(partial)) / float64(total) * 100
	}

	composite := skillScore*skillWeight +
		float64(analysis.KeywordDensity)*keywordWeight +
		float64(analysis.Experience.Match)*experienceWeight

	return clamp(int(math.Round(composite)))
}

// TotalSkillsNeeded returns the number of relevant skills not yet fully
// matched. The analysis task captures this once as the calibration
// baseline; it is never recomputed after skill additions begin.
func TotalSkillsNeeded(analysis *domain.MatchAnalysis) int {
	return countRelevant(analysis.PartialMatches) + countRelevant(analysis.MissingSkills)
}

// ApplySkillAddition computes the score after adding skillsAddedCount
// skills, distributing the baseline score gap evenly across the baseline
// skill count: perSkillGain = (100 - baselineScore) / baselineTotalNeeded,
// newScore = floor(currentScore + perSkillGain * skillsAddedCount), clamped
// to 100.
//
// Whenever a positive gap remains (baselineScore < 100) the result is
// strictly greater than currentScore; if the formula yields no increase the
// score is forced to currentScore+1. A user who adds a skill must never see
// their score stay flat or drop.
func ApplySkillAddition(currentScore, baselineScore, baselineTotalNeeded, skillsAddedCount int) int {
	var perSkillGain float64
	if baselineTotalNeeded > 0 {
		perSkillGain = float64(100-baselineScore) / float64(baselineTotalNeeded)
	}

	newScore := int(math.Floor(float64(currentScore) + perSkillGain*float64(skillsAddedCount)))

	if newScore <= currentScore && baselineScore < 100 {
		newScore = currentScore + 1
	}

	if newScore > 100 {
		newScore = 100
	}

	return clamp(newScore)
}

func countRelevant(skills []domain.SkillMatch) int {
	count := 0
	for _, skill := range skills {
		if skill.Importance.IsRelevant() {
			count++
		}
	}
	return count
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
