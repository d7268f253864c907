package domain

import (
	"errors"
	"fmt"
	"time"
)

// UserFacingError marks the expected, recoverable errors of the registration
// workflows. Transport layers match it with errors.As and translate it into a
// client error; everything else is an internal error.
type UserFacingError interface {
	error
	UserFacing()
}

// IsUserFacing reports whether err (or anything it wraps) belongs to the
// domain error taxonomy.
func IsUserFacing(err error) bool {
	var ufe UserFacingError
	return errors.As(err, &ufe)
}

// InvalidQuestionGraphError indicates a question referencing a parent id that
// is not part of the question set. This is a data integrity problem in the
// form definition, not a user mistake.
type InvalidQuestionGraphError struct {
	QuestionID string
	ParentID   string
}

func (e *InvalidQuestionGraphError) Error() string {
	return fmt.Sprintf("question %q references unknown parent question %q", e.QuestionID, e.ParentID)
}

func (e *InvalidQuestionGraphError) UserFacing() {}

// CyclicQuestionGraphError indicates a parent chain that loops back on itself.
type CyclicQuestionGraphError struct {
	QuestionID string
}

func (e *CyclicQuestionGraphError) Error() string {
	return fmt.Sprintf("question graph contains a cycle through question %q", e.QuestionID)
}

func (e *CyclicQuestionGraphError) UserFacing() {}

// QuestionNotFoundError indicates a submission referencing a question id that
// is not part of the form being answered.
type QuestionNotFoundError struct {
	QuestionID string
}

func (e *QuestionNotFoundError) Error() string {
	return fmt.Sprintf("no question with id %q in this form", e.QuestionID)
}

func (e *QuestionNotFoundError) UserFacing() {}

// FormNotAvailableError indicates a profile submission outside the configured
// registration window.
type FormNotAvailableError struct {
	From  time.Time
	Until time.Time
	Now   time.Time
}

func (e *FormNotAvailableError) Error() string {
	if e.Now.Before(e.From) {
		return fmt.Sprintf("the form is not yet open, it opens at %s", e.From.Format(time.RFC3339))
	}
	return fmt.Sprintf("the form closed at %s", e.Until.Format(time.RFC3339))
}

func (e *FormNotAvailableError) UserFacing() {}

// NotAdmittedError indicates a confirmation operation by a user who was never
// admitted.
type NotAdmittedError struct{}

func (e *NotAdmittedError) Error() string {
	return "you need to be admitted before accessing the confirmation form"
}

func (e *NotAdmittedError) UserFacing() {}

// ConfirmationDeadlineFailedError indicates a confirmation submission after
// the user's personal deadline passed.
type ConfirmationDeadlineFailedError struct {
	Deadline time.Time
}

func (e *ConfirmationDeadlineFailedError) Error() string {
	return fmt.Sprintf("the confirmation deadline passed at %s", e.Deadline.Format(time.RFC3339))
}

func (e *ConfirmationDeadlineFailedError) UserFacing() {}

// QuestionNotAnsweredError indicates a visible mandatory question without a
// usable answer in the submission.
type QuestionNotAnsweredError struct {
	Title      string
	QuestionID string
}

func (e *QuestionNotAnsweredError) Error() string {
	return fmt.Sprintf("question %q (%s) was not answered", e.Title, e.QuestionID)
}

func (e *QuestionNotAnsweredError) UserFacing() {}

// InvalidAnswerError indicates an answer value failing the question's
// validation rules.
type InvalidAnswerError struct {
	Title      string
	QuestionID string
	Value      string
}

func (e *InvalidAnswerError) Error() string {
	return fmt.Sprintf("%q is not a valid answer to question %q (%s)", e.Value, e.Title, e.QuestionID)
}

func (e *InvalidAnswerError) UserFacing() {}

// QuestionGraphBrokenError indicates an internal traversal invariant
// violation: a child was checked before its parent had any answer in the same
// payload.
type QuestionGraphBrokenError struct {
	QuestionID string
	ParentID   string
}

func (e *QuestionGraphBrokenError) Error() string {
	return fmt.Sprintf("question graph broken: parent %q of question %q has no answer in this submission", e.ParentID, e.QuestionID)
}

func (e *QuestionGraphBrokenError) UserFacing() {}

// IncompleteProfileFormError indicates that the profile questions added after
// a user's initial submission do not form a self-contained graph.
type IncompleteProfileFormError struct {
	Reason error
}

func (e *IncompleteProfileFormError) Error() string {
	return fmt.Sprintf("the profile questions added since your submission are inconsistent: %v", e.Reason)
}

func (e *IncompleteProfileFormError) Unwrap() error { return e.Reason }

func (e *IncompleteProfileFormError) UserFacing() {}
