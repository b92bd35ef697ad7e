package domain

import "time"

// UserStats accumulates a reviewer's activity and agreement figures.
// AverageConcordance is a running average over ConcordanceTrials samples.
type UserStats struct {
	CompletedTrials    int     `json:"completed_trials" validate:"min=0"`
	TotalReviewTime    float64 `json:"total_review_time" validate:"min=0"` // minutes
	AverageConcordance float64 `json:"average_concordance"`                // agreement rate, 0-1
	ConcordanceTrials  int     `json:"concordance_trials" validate:"min=0"`
}

// RecordConcordance folds one new concordance sample into the running average.
func (s *UserStats) RecordConcordance(sample float64) {
	n := float64(s.ConcordanceTrials)
	s.AverageConcordance = (s.AverageConcordance*n + sample) / (n + 1)
	s.ConcordanceTrials++
}

// User is a reviewer. When ModelID is set the user is a model reviewer: a
// registered model standing in for a human, whose pending trials are answered
// by the model reviewer loop instead of the review UI.
type User struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	ModelID   string    `json:"model_id,omitempty"`
	Stats     UserStats `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsModelReviewer reports whether the user's trials are answered by a model.
func (u *User) IsModelReviewer() bool { return u.ModelID != "" }
