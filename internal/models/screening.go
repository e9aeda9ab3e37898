package models

import "time"

// Severity is the banded classification of a PHQ-9 total score.
type Severity string

const (
	SeverityMinimal          Severity = "MINIMAL"
	SeverityMild             Severity = "MILD"
	SeverityModerate         Severity = "MODERATE"
	SeverityModeratelySevere Severity = "MODERATELY_SEVERE"
	SeveritySevere           Severity = "SEVERE"
)

// RiskLevel emphasises self-harm indicators over the raw total.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// IsHigh reports whether the level requires clinical review.
func (r RiskLevel) IsHigh() bool {
	return r == RiskHigh || r == RiskCritical
}

// FunctionalImpairment answers the tenth, unscored questionnaire item.
type FunctionalImpairment string

const (
	ImpairmentNone      FunctionalImpairment = "NOT_DIFFICULT_AT_ALL"
	ImpairmentSomewhat  FunctionalImpairment = "SOMEWHAT_DIFFICULT"
	ImpairmentVery      FunctionalImpairment = "VERY_DIFFICULT"
	ImpairmentExtremely FunctionalImpairment = "EXTREMELY_DIFFICULT"
)

// ItemCount is the number of scored PHQ-9 items.
const ItemCount = 9

// ScreeningResponse is a persisted PHQ-9 submission. Derived fields are
// always produced by the screening calculator.
type ScreeningResponse struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"userId"`
	Scores               [ItemCount]int        `json:"scores"`
	FunctionalImpairment *FunctionalImpairment `json:"functionalImpairment,omitempty"`
	TotalScore           int                   `json:"totalScore"`
	Severity             Severity              `json:"severityLevel"`
	RiskLevel            RiskLevel             `json:"riskLevel"`
	SuicidalIdeation     bool                  `json:"suicidalIdeation"`
	FlaggedForReview     bool                  `json:"flaggedForReview"`
	Notes                string                `json:"notes,omitempty"`
	ReviewNotes          string                `json:"reviewNotes,omitempty"`
	ReviewedBy           string                `json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time            `json:"reviewedAt,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
}
