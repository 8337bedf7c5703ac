package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SkillImportance tiers a skill's weight in the match-score calculation.
// Only critical and high-importance skills feed the score formula.
type SkillImportance string

// Possible skill importance tiers.
const (
	SkillImportanceCritical SkillImportance = "critical"
	SkillImportanceHigh     SkillImportance = "high"
	SkillImportanceMedium   SkillImportance = "medium"
	SkillImportanceLow      SkillImportance = "low"
)

// IsRelevant reports whether the importance tier participates in the
// skill-match score.
func (i SkillImportance) IsRelevant() bool {
	return i == SkillImportanceCritical || i == SkillImportanceHigh
}

// SkillMatch is a single skill entry produced by the analysis stage.
type SkillMatch struct {
	Name       string          `json:"name"`
	Importance SkillImportance `json:"importance"`
	Confidence float64         `json:"confidence"`
}

// ExperienceMatch is the experience-fit component of the analysis.
type ExperienceMatch struct {
	Match   int    `json:"match"`
	Summary string `json:"summary,omitempty"`
}

// MatchAnalysis validation errors
var (
	ErrEmptyAnalysisID     = errors.New("analysis ID cannot be empty")
	ErrEmptyAnalysisUserID = errors.New("analysis user ID cannot be empty")
	ErrSkillNotFound       = errors.New("skill not present in analysis")
)

// MatchAnalysis is the ATS-style comparison of a resume against a job
// posting. It is produced once by the analysis stage and then mutated
// incrementally by skill-addition jobs, which move entries between the
// matched/partial/missing sets.
//
// BaselineScore and BaselineTotalNeeded are captured when the analysis is
// first scored and never recomputed from the mutated sets; skill-addition
// calibration depends on them staying fixed.
type MatchAnalysis struct {
	ID                  uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	ResumeID            uuid.UUID       `json:"resume_id"`
	CompanyName         string          `json:"company_name"`
	JobTitle            string          `json:"job_title"`
	Score               int             `json:"score"`
	BaselineScore       int             `json:"baseline_score"`
	BaselineTotalNeeded int             `json:"baseline_total_needed"`
	MatchedSkills       []SkillMatch    `json:"matched_skills"`
	PartialMatches      []SkillMatch    `json:"partial_matches"`
	MissingSkills       []SkillMatch    `json:"missing_skills"`
	KeywordDensity      int             `json:"keyword_density"`
	Experience          ExperienceMatch `json:"experience_match"`
	OptimizedResume     string          `json:"optimized_resume,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewMatchAnalysis creates a MatchAnalysis shell owned by the given user
// and resume. Skill sets and scores are filled in by the analysis task.
func NewMatchAnalysis(userID, resumeID uuid.UUID, companyName, jobTitle string) (*MatchAnalysis, error) {
	now := time.Now().UTC()
	analysis := &MatchAnalysis{
		ID:          uuid.New(),
		UserID:      userID,
		ResumeID:    resumeID,
		CompanyName: companyName,
		JobTitle:    jobTitle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := analysis.Validate(); err != nil {
		return nil, err
	}

	return analysis, nil
}

// Validate checks if the MatchAnalysis has valid data.
func (a *MatchAnalysis) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyAnalysisID
	}

	if a.UserID == uuid.Nil {
		return ErrEmptyAnalysisUserID
	}

	return nil
}

// AddSkill moves the named skill from the missing or partial set into the
// matched set and returns it. Returns ErrSkillNotFound when the skill is
// not present in either source set. Baseline fields are left untouched.
func (a *MatchAnalysis) AddSkill(name string) (SkillMatch, error) {
	if skill, ok := removeSkill(&a.MissingSkills, name); ok {
		a.MatchedSkills = append(a.MatchedSkills, skill)
		return skill, nil
	}

	if skill, ok := removeSkill(&a.PartialMatches, name); ok {
		a.MatchedSkills = append(a.MatchedSkills, skill)
		return skill, nil
	}

	return SkillMatch{}, ErrSkillNotFound
}

// removeSkill deletes the named skill from the slice, preserving order,
// and returns it.
func removeSkill(skills *[]SkillMatch, name string) (SkillMatch, bool) {
	for i, skill := range *skills {
		if skill.Name == name {
			*skills = append((*skills)[:i], (*skills)[i+1:]...)
			return skill, true
		}
	}
	return SkillMatch{}, false
}
