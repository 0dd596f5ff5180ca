package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store and app.QuizLoader. One
// mutex guards everything, which makes RecordAnswer trivially atomic.
type Store struct {
	mu       sync.RWMutex
	quizzes  map[string]domain.Quiz
	sessions map[string]domain.GameSession
	codes    map[string]string // join code -> latest session id
	players  map[string]domain.Player
	rosters  map[string][]string // session id -> player ids
	answers  map[answerKey]domain.PlayerAnswer
}

type answerKey struct {
	playerID   string
	questionID string
}

func NewStore() *Store {
	return &Store{
		quizzes:  make(map[string]domain.Quiz),
		sessions: make(map[string]domain.GameSession),
		codes:    make(map[string]string),
		players:  make(map[string]domain.Player),
		rosters:  make(map[string][]string),
		answers:  make(map[answerKey]domain.PlayerAnswer),
	}
}

func (s *Store) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = copyQuiz(quiz)
	return nil
}

func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return copyQuiz(quiz), nil
}

func (s *Store) ListQuizzes(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, q := range s.quizzes {
		if q.OwnerID != ownerID {
			continue
		}
		q.Questions = nil
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	for id, session := range s.sessions {
		if session.QuizID == quizID {
			s.deleteSessionLocked(session)
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) deleteSessionLocked(session domain.GameSession) {
	if s.codes[session.JoinCode] == session.ID {
		delete(s.codes, session.JoinCode)
	}
	for _, playerID := range s.rosters[session.ID] {
		delete(s.players, playerID)
	}
	delete(s.rosters, session.ID)
	for key, answer := range s.answers {
		if answer.SessionID == session.ID {
			delete(s.answers, key)
		}
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.codes[session.JoinCode]; ok && s.sessions[id].Active() {
		return domain.ErrJoinCodeTaken
	}
	s.sessions[session.ID] = session
	s.codes[session.JoinCode] = session.ID
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// GetSessionByCode returns the session that last took the code. A code is
// only reused once its previous holder finished, so that is the active one
// when there is an active one.
func (s *Store) GetSessionByCode(_ context.Context, code string) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) UpdateSession(_ context.Context, next domain.GameSession, expect domain.SessionState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[next.ID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if current.State() != expect {
		return false, nil
	}
	s.sessions[next.ID] = next
	return true, nil
}

func (s *Store) AddPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[player.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.players[player.ID] = player
	s.rosters[player.SessionID] = append(s.rosters[player.SessionID], player.ID)
	return nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) ListPlayers(_ context.Context, sessionID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.rosters[sessionID]
	out := make([]domain.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.players[id])
	}
	domain.SortRoster(out)
	return out, nil
}

func (s *Store) GetAnswer(_ context.Context, playerID, questionID string) (domain.PlayerAnswer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[answerKey{playerID, questionID}]
	return answer, ok, nil
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.PlayerAnswer) (domain.PlayerAnswer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{answer.PlayerID, answer.QuestionID}
	if existing, ok := s.answers[key]; ok {
		return existing, false, nil
	}
	player, ok := s.players[answer.PlayerID]
	if !ok {
		return domain.PlayerAnswer{}, false, domain.ErrPlayerNotFound
	}
	s.answers[key] = answer
	player.Score += answer.Points
	s.players[player.ID] = player
	return answer, true, nil
}

func (s *Store) CountAnswers(_ context.Context, sessionID, questionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, playerID := range s.rosters[sessionID] {
		if _, ok := s.answers[answerKey{playerID, questionID}]; ok {
			n++
		}
	}
	return n, nil
}

func copyQuiz(q domain.Quiz) domain.Quiz {
	out := q
	out.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		if question.Estimate != nil {
			est := *question.Estimate
			question.Estimate = &est
		}
		out.Questions[i] = question
	}
	return out
}
