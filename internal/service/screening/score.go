// Package screening scores PHQ-9 questionnaires and derives severity and
// risk classifications.
package screening

import (
	"errors"
	"fmt"

	"harmoni/internal/models"
)

// ErrInvalidScores is returned when the item scores are not exactly nine
// integers in the range 0..3.
var ErrInvalidScores = errors.New("invalid phq-9 scores")

const (
	minItemScore = 0
	maxItemScore = 3
	// MaxTotalScore is the highest achievable total.
	MaxTotalScore = models.ItemCount * maxItemScore
)

// Result holds the derived fields of a scored questionnaire.
type Result struct {
	Scores           [models.ItemCount]int
	TotalScore       int
	Severity         models.Severity
	RiskLevel        models.RiskLevel
	SuicidalIdeation bool
	FlaggedForReview bool
}

type severityBand struct {
	upper    int
	severity models.Severity
}

// Upper bounds are inclusive and evaluated in ascending order.
var severityBands = []severityBand{
	{4, models.SeverityMinimal},
	{9, models.SeverityMild},
	{14, models.SeverityModerate},
	{19, models.SeverityModeratelySevere},
}

// Validate checks the item count and range without scoring.
func Validate(items []int) error {
	if len(items) != models.ItemCount {
		return fmt.Errorf("%w: expected %d items, got %d", ErrInvalidScores, models.ItemCount, len(items))
	}
	for i, v := range items {
		if v < minItemScore || v > maxItemScore {
			return fmt.Errorf("%w: question %d score %d out of range %d-%d", ErrInvalidScores, i+1, v, minItemScore, maxItemScore)
		}
	}
	return nil
}

// Score validates and scores nine PHQ-9 item answers.
func Score(items []int) (Result, error) {
	if err := Validate(items); err != nil {
		return Result{}, err
	}
	var res Result
	for i, v := range items {
		res.Scores[i] = v
		res.TotalScore += v
	}
	q9 := items[models.ItemCount-1]
	res.Severity = ClassifySeverity(res.TotalScore)
	res.RiskLevel = ClassifyRisk(q9, res.TotalScore)
	res.SuicidalIdeation = q9 > 0
	res.FlaggedForReview = res.RiskLevel.IsHigh()
	return res, nil
}

// ClassifySeverity maps a total score to its severity band.
func ClassifySeverity(total int) models.Severity {
	for _, band := range severityBands {
		if total <= band.upper {
			return band.severity
		}
	}
	return models.SeveritySevere
}

// ClassifyRisk applies the self-harm item before falling back to the total.
func ClassifyRisk(q9, total int) models.RiskLevel {
	switch {
	case q9 >= 3:
		return models.RiskCritical
	case q9 >= 2:
		return models.RiskHigh
	case q9 >= 1:
		return models.RiskModerate
	case total >= 20:
		return models.RiskHigh
	case total >= 15:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

// ParseSeverity accepts the canonical upper-case severity names.
func ParseSeverity(raw string) (models.Severity, bool) {
	switch s := models.Severity(raw); s {
	case models.SeverityMinimal, models.SeverityMild, models.SeverityModerate,
		models.SeverityModeratelySevere, models.SeveritySevere:
		return s, true
	}
	return "", false
}
