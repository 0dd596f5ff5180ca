package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches a join code or id.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrPlayerNotFound is returned when a player id is unknown or belongs to another session.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question id is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrForbidden is returned when the caller is not the quiz owner or session host.
	ErrForbidden = errors.New("not allowed for this host")

	// ErrValidation wraps every authoring and join validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidNickname is returned for empty or over-long nicknames.
	ErrInvalidNickname = errors.New("nickname must be 1-20 characters")
	// ErrInvalidAnswer is returned when a submission does not fit the question type.
	ErrInvalidAnswer = errors.New("answer does not match question type")

	// ErrSessionFinished is returned when joining or answering a finished session.
	ErrSessionFinished = errors.New("game session already finished")
	// ErrQuestionNotActive is returned when answering a question other than the current one.
	ErrQuestionNotActive = errors.New("question is not the current question")
	// ErrAnswerWindowClosed is returned when answering after the reveal.
	ErrAnswerWindowClosed = errors.New("answer window closed")

	// ErrJoinCodeTaken is returned by stores when an active session already holds the code.
	ErrJoinCodeTaken = errors.New("join code already in use")
	// ErrAnswerExists is returned by stores when the (player, question) pair is already recorded.
	ErrAnswerExists = errors.New("answer already recorded")
)
