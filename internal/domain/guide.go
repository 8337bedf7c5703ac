package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// GuideStatus represents the processing state of a prep guide document.
type GuideStatus string

// Possible prep-guide status values.
const (
	GuideStatusPending    GuideStatus = "pending"
	GuideStatusProcessing GuideStatus = "processing"
	GuideStatusCompleted  GuideStatus = "completed"
	GuideStatusFailed     GuideStatus = "failed"
	GuideStatusCancelled  GuideStatus = "cancelled"
)

// IsTerminal reports whether the guide status is terminal.
func (s GuideStatus) IsTerminal() bool {
	switch s {
	case GuideStatusCompleted, GuideStatusFailed, GuideStatusCancelled:
		return true
	default:
		return false
	}
}

// Section names written by the prep-guide pipeline, in execution order.
// The final two are produced in parallel by the last stage.
const (
	SectionCompanyResearch     = "company_research"
	SectionRoleAnalysis        = "role_analysis"
	SectionTechnicalPrep       = "technical_prep"
	SectionBehavioralFramework = "behavioral_framework"
	SectionStoryMapping        = "story_mapping"
	SectionQuestions           = "questions"
	SectionStrategy            = "strategy"
)

// Prep-guide validation errors
var (
	ErrEmptyGuideID          = errors.New("guide ID cannot be empty")
	ErrEmptyGuideUserID      = errors.New("guide user ID cannot be empty")
	ErrEmptyGuideApplication = errors.New("guide application ID cannot be empty")
	ErrEmptyCompanyName      = errors.New("company name cannot be empty")
	ErrInvalidGuideStatus    = errors.New("invalid guide status")
)

// PrepGuide is the target document of the interview-prep pipeline. Each
// pipeline stage writes its output into Sections under its own key as soon
// as it finishes, so a client observing the guide sees partial completion
// before the pipeline terminates (progressive disclosure).
type PrepGuide struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	ApplicationID uuid.UUID         `json:"application_id"`
	CompanyName   string            `json:"company_name"`
	RoleTitle     string            `json:"role_title"`
	JobDescription string           `json:"job_description,omitempty"`
	Status        GuideStatus       `json:"status"`
	Progress      int               `json:"progress"`
	CurrentStep   string            `json:"current_step"`
	Sections      map[string]string `json:"sections"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewPrepGuide creates a new PrepGuide in the pending state for the given
// application. Returns an error if validation fails.
func NewPrepGuide(userID, applicationID uuid.UUID, companyName, roleTitle, jobDescription string) (*PrepGuide, error) {
	now := time.Now().UTC()
	guide := &PrepGuide{
		ID:             uuid.New(),
		UserID:         userID,
		ApplicationID:  applicationID,
		CompanyName:    companyName,
		RoleTitle:      roleTitle,
		JobDescription: jobDescription,
		Status:         GuideStatusPending,
		Sections:       make(map[string]string),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := guide.Validate(); err != nil {
		return nil, err
	}

	return guide, nil
}

// Validate checks if the PrepGuide has valid data.
func (g *PrepGuide) Validate() error {
	if g.ID == uuid.Nil {
		return ErrEmptyGuideID
	}

	if g.UserID == uuid.Nil {
		return ErrEmptyGuideUserID
	}

	if g.ApplicationID == uuid.Nil {
		return ErrEmptyGuideApplication
	}

	if g.CompanyName == "" {
		return ErrEmptyCompanyName
	}

	if !isValidGuideStatus(g.Status) {
		return ErrInvalidGuideStatus
	}

	return nil
}

func isValidGuideStatus(status GuideStatus) bool {
	switch status {
	case GuideStatusPending, GuideStatusProcessing, GuideStatusCompleted,
		GuideStatusFailed, GuideStatusCancelled:
		return true
	default:
		return false
	}
}
