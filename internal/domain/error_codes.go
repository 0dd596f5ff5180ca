package domain

import "errors"

// codedErrors is checked in order, so the specific validation errors come
// before the ErrValidation they are wrapped in.
var codedErrors = []struct {
	code string
	err  error
}{
	{"session_not_found", ErrSessionNotFound},
	{"player_not_found", ErrPlayerNotFound},
	{"quiz_not_found", ErrQuizNotFound},
	{"question_not_found", ErrQuestionNotFound},
	{"forbidden", ErrForbidden},
	{"invalid_nickname", ErrInvalidNickname},
	{"invalid_answer", ErrInvalidAnswer},
	{"validation", ErrValidation},
	{"session_finished", ErrSessionFinished},
	{"question_not_active", ErrQuestionNotActive},
	{"answer_window_closed", ErrAnswerWindowClosed},
	{"join_code_taken", ErrJoinCodeTaken},
}

// ErrorCode returns the stable wire code for err, or "internal".
func ErrorCode(err error) string {
	for _, c := range codedErrors {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of ErrorCode; unknown codes yield nil.
func ErrorForCode(code string) error {
	for _, c := range codedErrors {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
