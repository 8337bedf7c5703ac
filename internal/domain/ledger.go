package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActivityType identifies what kind of token movement an activity records.
type ActivityType string

// Possible activity types. Task-type debits reuse the task type name so the
// activity feed reads naturally.
const (
	ActivityTypeAnalyzeResume  ActivityType = "analyze_resume"
	ActivityTypeOptimizeResume ActivityType = "optimize_resume"
	ActivityTypeAddSkill       ActivityType = "add_skill"
	ActivityTypeInterviewPrep  ActivityType = "interview_prep"
	ActivityTypeCoverLetter    ActivityType = "cover_letter"
	ActivityTypePurchase       ActivityType = "purchase"
)

// LedgerActivity validation errors
var (
	ErrEmptyActivityID     = errors.New("activity ID cannot be empty")
	ErrEmptyActivityUserID = errors.New("activity user ID cannot be empty")
	ErrZeroTokenMovement   = errors.New("activity must move a non-zero token amount")
)

// LedgerActivity is an immutable audit record of one token-balance
// movement. Every balance mutation writes exactly one activity row in the
// same transaction; the balance is never changed without one.
type LedgerActivity struct {
	ActivityID        uuid.UUID    `json:"activity_id"`
	UserID            uuid.UUID    `json:"user_id"`
	Type              ActivityType `json:"type"`
	Description       string       `json:"description,omitempty"`
	TokensUsed        int          `json:"tokens_used"`
	TokenBalanceAfter int          `json:"token_balance_after"`
	ResourceID        string       `json:"resource_id,omitempty"`
	Status            string       `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
}

// NewLedgerActivity creates an activity record for a completed balance
// movement. tokensUsed is positive for debits and negative for credits.
func NewLedgerActivity(userID uuid.UUID, activityType ActivityType, description string, tokensUsed, balanceAfter int, resourceID string) (*LedgerActivity, error) {
	activity := &LedgerActivity{
		ActivityID:        uuid.New(),
		UserID:            userID,
		Type:              activityType,
		Description:       description,
		TokensUsed:        tokensUsed,
		TokenBalanceAfter: balanceAfter,
		ResourceID:        resourceID,
		Status:            "completed",
		CreatedAt:         time.Now().UTC(),
	}

	if err := activity.Validate(); err != nil {
		return nil, err
	}

	return activity, nil
}

// Validate checks if the LedgerActivity has valid data.
func (a *LedgerActivity) Validate() error {
	if a.ActivityID == uuid.Nil {
		return ErrEmptyActivityID
	}

	if a.UserID == uuid.Nil {
		return ErrEmptyActivityUserID
	}

	if a.TokensUsed == 0 {
		return ErrZeroTokenMovement
	}

	return nil
}
