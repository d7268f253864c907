package application

import (
	"testing"

	"github.com/eventmesa/regsvc/internal/domain"
)

func floatptr(f float64) *float64 { return &f }

func TestValidAnswerText(t *testing.T) {
	q := domain.Question{Type: domain.QuestionTypeText, Mandatory: true}

	if !ValidAnswer(q, "hello") {
		t.Fatalf("expected non-empty text to be valid")
	}
	if ValidAnswer(q, "") {
		t.Fatalf("expected empty mandatory text to be invalid")
	}
	if ValidAnswer(q, "   ") {
		t.Fatalf("expected whitespace-only mandatory text to be invalid")
	}

	q.Mandatory = false
	if !ValidAnswer(q, "") {
		t.Fatalf("expected empty optional text to be valid")
	}
}

func TestValidAnswerCountry(t *testing.T) {
	q := domain.Question{Type: domain.QuestionTypeCountry, Mandatory: true}

	if !ValidAnswer(q, "Germany") {
		t.Fatalf("expected country value to be valid")
	}
	if ValidAnswer(q, "") {
		t.Fatalf("expected empty mandatory country to be invalid")
	}
}

func TestValidAnswerNumber(t *testing.T) {
	q := domain.Question{
		Type:      domain.QuestionTypeNumber,
		Mandatory: true,
		Number: &domain.NumberConfig{
			AllowDecimals: false,
			MinValue:      floatptr(0),
			MaxValue:      floatptr(100),
		},
	}

	cases := []struct {
		value string
		valid bool
	}{
		{"50", true},
		{"0", true},
		{"100", true},
		{"3.5", false},
		{"-1", false},
		{"9001", false},
		{"abc", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidAnswer(q, tc.value); got != tc.valid {
			t.Errorf("value %q: expected valid=%v, got %v", tc.value, tc.valid, got)
		}
	}
}

func TestValidAnswerNumberDecimals(t *testing.T) {
	q := domain.Question{
		Type:      domain.QuestionTypeNumber,
		Mandatory: true,
		Number:    &domain.NumberConfig{AllowDecimals: true},
	}

	if !ValidAnswer(q, "3.5") {
		t.Fatalf("expected decimal to be valid when decimals are allowed")
	}
	if ValidAnswer(q, "NaN") {
		t.Fatalf("expected NaN to be invalid")
	}
	if ValidAnswer(q, "+Inf") {
		t.Fatalf("expected infinity to be invalid")
	}
}

func TestValidAnswerNumberWithoutConfig(t *testing.T) {
	q := domain.Question{Type: domain.QuestionTypeNumber, Mandatory: true}

	if !ValidAnswer(q, "42") {
		t.Fatalf("expected plain number to be valid without bounds")
	}
	if ValidAnswer(q, "forty-two") {
		t.Fatalf("expected non-numeric value to be invalid")
	}
}

func TestValidAnswerChoices(t *testing.T) {
	q := domain.Question{
		Type:      domain.QuestionTypeChoices,
		Mandatory: true,
		Choices: &domain.ChoicesConfig{
			Choices:       []string{"Cat", "Dog", "Bird"},
			AllowMultiple: false,
		},
	}

	if !ValidAnswer(q, "Dog") {
		t.Fatalf("expected known single choice to be valid")
	}
	if ValidAnswer(q, "Fish") {
		t.Fatalf("expected unknown choice to be invalid")
	}
	if ValidAnswer(q, "Cat,Dog") {
		t.Fatalf("expected multiple selections to be invalid when single-choice")
	}

	q.Choices.AllowMultiple = true
	if !ValidAnswer(q, "Cat,Dog") {
		t.Fatalf("expected multiple known choices to be valid")
	}
	if ValidAnswer(q, "Cat,Fish") {
		t.Fatalf("expected selection with unknown option to be invalid")
	}
}

func TestValidAnswerOptionalEmptyShortcut(t *testing.T) {
	q := domain.Question{
		Type:      domain.QuestionTypeNumber,
		Mandatory: false,
		Number:    &domain.NumberConfig{MinValue: floatptr(10)},
	}

	if !ValidAnswer(q, "") {
		t.Fatalf("expected empty optional answer to skip validation")
	}
	if ValidAnswer(q, "5") {
		t.Fatalf("expected out-of-range value to stay invalid even when optional")
	}
}
