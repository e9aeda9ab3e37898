package screening

import (
	"fmt"
	"strings"

	"harmoni/internal/models"
)

var answerScores = map[string]int{
	"not at all":              0,
	"several days":            1,
	"more than half the days": 2,
	"nearly every day":        3,
}

var impairmentLabels = map[string]models.FunctionalImpairment{
	"not difficult at all": models.ImpairmentNone,
	"somewhat difficult":   models.ImpairmentSomewhat,
	"very difficult":       models.ImpairmentVery,
	"extremely difficult":  models.ImpairmentExtremely,
}

// Answers is a questionnaire converted from its display labels.
type Answers struct {
	Scores     []int
	Impairment *models.FunctionalImpairment
}

// ParseAnswers converts questionnaire labels into item scores. It expects
// nine frequency labels optionally followed by the impairment label.
func ParseAnswers(labels []string) (Answers, error) {
	if len(labels) != models.ItemCount && len(labels) != models.ItemCount+1 {
		return Answers{}, fmt.Errorf("%w: expected %d or %d answers, got %d",
			ErrInvalidScores, models.ItemCount, models.ItemCount+1, len(labels))
	}
	out := Answers{Scores: make([]int, 0, models.ItemCount)}
	for i, label := range labels[:models.ItemCount] {
		score, ok := answerScores[normalizeLabel(label)]
		if !ok {
			return Answers{}, fmt.Errorf("%w: unrecognised answer %q for question %d", ErrInvalidScores, label, i+1)
		}
		out.Scores = append(out.Scores, score)
	}
	if len(labels) > models.ItemCount {
		imp, err := ParseImpairment(labels[models.ItemCount])
		if err != nil {
			return Answers{}, err
		}
		out.Impairment = imp
	}
	return out, nil
}

// ParseImpairment accepts either the enum value or its display label. An
// empty string yields nil.
func ParseImpairment(raw string) (*models.FunctionalImpairment, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	switch v := models.FunctionalImpairment(strings.ToUpper(raw)); v {
	case models.ImpairmentNone, models.ImpairmentSomewhat, models.ImpairmentVery, models.ImpairmentExtremely:
		return &v, nil
	}
	if v, ok := impairmentLabels[normalizeLabel(raw)]; ok {
		return &v, nil
	}
	return nil, fmt.Errorf("%w: unrecognised functional impairment %q", ErrInvalidScores, raw)
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
