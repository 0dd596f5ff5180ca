package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// JoinCodeLength is the fixed length of a session join code.
	JoinCodeLength = 6
	// JoinCodeAlphabet lists the characters a join code is drawn from.
	JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	MaxNicknameLength = 20
	MinOptions        = 2
	MaxOptions        = 4
)

// NormalizeJoinCode trims and upper-cases user input.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code has the join code shape.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// NormalizeNickname trims the nickname and checks its length.
func NormalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(nickname)
	if n == 0 || n > MaxNicknameLength {
		return "", fmt.Errorf("%w: %w", ErrValidation, ErrInvalidNickname)
	}
	return nickname, nil
}

// ValidateQuiz checks a quiz draft before anything is written.
func ValidateQuiz(quiz Quiz) error {
	if strings.TrimSpace(quiz.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrValidation)
	}
	for i, q := range quiz.Questions {
		if err := ValidateQuestion(q); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateQuestion checks the answer payload against the question type.
func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrValidation)
	}
	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
			return fmt.Errorf("%w: multiple choice needs %d-%d options", ErrValidation, MinOptions, MaxOptions)
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("%w: options must not be empty", ErrValidation)
			}
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("%w: correct index %d out of range", ErrValidation, q.CorrectIndex)
		}
	case TrueFalse:
		if q.CorrectIndex != 0 && q.CorrectIndex != 1 {
			return fmt.Errorf("%w: true/false correct index must be 0 or 1", ErrValidation)
		}
	case Estimate:
		e := q.Estimate
		if e == nil {
			return fmt.Errorf("%w: estimate range is required", ErrValidation)
		}
		if !e.Min.LessThan(e.Max) {
			return fmt.Errorf("%w: estimate min must be below max", ErrValidation)
		}
		if e.Correct.LessThan(e.Min) || e.Correct.GreaterThan(e.Max) {
			return fmt.Errorf("%w: correct value %s outside [%s, %s]", ErrValidation, e.Correct, e.Min, e.Max)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrValidation, q.Type)
	}
	return nil
}

// ValidateSubmission checks that the submitted value fits the question type.
func ValidateSubmission(q Question, sub Submission) error {
	switch q.Type {
	case MultipleChoice, TrueFalse:
		if sub.AnswerIndex == nil || sub.Estimate != nil {
			return ErrInvalidAnswer
		}
		n := len(q.Options)
		if q.Type == TrueFalse {
			n = len(TrueFalseOptions)
		}
		if *sub.AnswerIndex < 0 || *sub.AnswerIndex >= n {
			return ErrInvalidAnswer
		}
	case Estimate:
		if sub.Estimate == nil || sub.AnswerIndex != nil {
			return ErrInvalidAnswer
		}
	default:
		return ErrInvalidAnswer
	}
	return nil
}
