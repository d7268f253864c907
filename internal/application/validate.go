package application

import (
	"math"
	"strconv"
	"strings"

	"github.com/eventmesa/regsvc/internal/domain"
)

// ValidAnswer reports whether value is an acceptable answer to the question.
// It never errors; malformed values are simply invalid. An empty value on a
// non-mandatory question is always acceptable, an empty value on a mandatory
// question never is.
func ValidAnswer(q domain.Question, value string) bool {
	if !q.Mandatory && value == "" {
		return true
	}

	switch q.Type {
	case domain.QuestionTypeText, domain.QuestionTypeCountry:
		return len(strings.TrimSpace(value)) > 0
	case domain.QuestionTypeNumber:
		return validNumberAnswer(q.Number, value)
	case domain.QuestionTypeChoices:
		return validChoicesAnswer(q.Choices, value)
	default:
		return false
	}
}

func validNumberAnswer(cfg *domain.NumberConfig, value string) bool {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return false
	}
	if cfg == nil {
		return true
	}
	if !cfg.AllowDecimals && parsed != math.Trunc(parsed) {
		return false
	}
	if cfg.MinValue != nil && parsed < *cfg.MinValue {
		return false
	}
	if cfg.MaxValue != nil && parsed > *cfg.MaxValue {
		return false
	}
	return true
}

func validChoicesAnswer(cfg *domain.ChoicesConfig, value string) bool {
	selected := strings.Split(value, ",")
	if cfg == nil {
		return false
	}
	if !cfg.AllowMultiple && len(selected) > 1 {
		return false
	}
	for _, option := range selected {
		if !containsChoice(cfg.Choices, option) {
			return false
		}
	}
	return true
}

func containsChoice(choices []string, option string) bool {
	for _, choice := range choices {
		if choice == option {
			return true
		}
	}
	return false
}
