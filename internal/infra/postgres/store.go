package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

// Store is a bun-backed implementation of app.Store. Uniqueness of active
// join codes and of (player, question) answers is enforced by the schema.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID        string    `bun:"id,pk"`
	OwnerID   string    `bun:"owner_id"`
	Title     string    `bun:"title"`
	Gamified  bool      `bun:"gamified"`
	CreatedAt time.Time `bun:"created_at"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID              string         `bun:"id,pk"`
	QuizID          string         `bun:"quiz_id"`
	OrderIndex      int            `bun:"order_index"`
	Text            string         `bun:"text"`
	Type            string         `bun:"type"`
	Options         []string       `bun:"options,type:jsonb"`
	CorrectIndex    int            `bun:"correct_index"`
	EstimateMin     sql.NullString `bun:"estimate_min"`
	EstimateMax     sql.NullString `bun:"estimate_max"`
	EstimateCorrect sql.NullString `bun:"estimate_correct"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:game_sessions,alias:gs"`

	ID                   string       `bun:"id,pk"`
	QuizID               string       `bun:"quiz_id"`
	HostID               string       `bun:"host_id"`
	JoinCode             string       `bun:"join_code"`
	Status               string       `bun:"status"`
	CurrentQuestionIndex int          `bun:"current_question_index"`
	QuestionStartTime    bun.NullTime `bun:"question_start_time"`
	AnswerRevealed       bool         `bun:"answer_revealed"`
	RevealedAt           bun.NullTime `bun:"revealed_at"`
	CreatedAt            time.Time    `bun:"created_at"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:pl"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"session_id"`
	Nickname  string    `bun:"nickname"`
	Score     int       `bun:"score"`
	JoinedAt  time.Time `bun:"joined_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:player_answers,alias:pa"`

	ID          string         `bun:"id,pk"`
	SessionID   string         `bun:"session_id"`
	PlayerID    string         `bun:"player_id"`
	QuestionID  string         `bun:"question_id"`
	AnswerIndex sql.NullInt64  `bun:"answer_index"`
	Estimate    sql.NullString `bun:"estimate"`
	LatencyMs   int64          `bun:"latency_ms"`
	Points      int            `bun:"points"`
	CreatedAt   time.Time      `bun:"created_at"`
}

func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	row := quizRow{ID: quiz.ID, OwnerID: quiz.OwnerID, Title: quiz.Title, Gamified: quiz.Gamified, CreatedAt: quiz.CreatedAt}
	questions := make([]questionRow, len(quiz.Questions))
	for i, q := range quiz.Questions {
		questions[i] = toQuestionRow(q)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		if len(questions) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

func (s *Store) ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	var rows []quizRow
	err := s.db.NewSelect().Model(&rows).
		Where("owner_id = ?", ownerID).
		OrderExpr("created_at DESC, id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, len(rows))
	for i, r := range rows {
		out[i] = domain.Quiz{ID: r.ID, OwnerID: r.OwnerID, Title: r.Title, Gamified: r.Gamified, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// DeleteQuiz relies on ON DELETE CASCADE for questions, sessions, players and answers.
func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("id = ?", quizID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.GameSession) error {
	row := toSessionRow(session)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrJoinCodeTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", sessionID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("get session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (domain.GameSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).
		Where("join_code = ?", code).
		OrderExpr("status <> 'finished' DESC, created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("get session by code: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateSession is a conditional UPDATE: it only matches while the row still
// holds the expected guard fields.
func (s *Store) UpdateSession(ctx context.Context, next domain.GameSession, expect domain.SessionState) (bool, error) {
	row := toSessionRow(next)
	res, err := s.db.NewUpdate().Model(&row).
		Column("status", "current_question_index", "question_start_time", "answer_revealed", "revealed_at").
		WherePK().
		Where("status = ?", string(expect.Status)).
		Where("current_question_index = ?", expect.QuestionIndex).
		Where("answer_revealed = ?", expect.Revealed).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) AddPlayer(ctx context.Context, player domain.Player) error {
	row := playerRow{ID: player.ID, SessionID: player.SessionID, Nickname: player.Nickname, Score: player.Score, JoinedAt: player.JoinedAt}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	var row playerRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", playerID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	var rows []playerRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("score DESC, joined_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	out := make([]domain.Player, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) GetAnswer(ctx context.Context, playerID, questionID string) (domain.PlayerAnswer, bool, error) {
	return getAnswer(ctx, s.db, playerID, questionID)
}

func getAnswer(ctx context.Context, db bun.IDB, playerID, questionID string) (domain.PlayerAnswer, bool, error) {
	var row answerRow
	err := db.NewSelect().Model(&row).
		Where("player_id = ?", playerID).
		Where("question_id = ?", questionID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerAnswer{}, false, nil
	}
	if err != nil {
		return domain.PlayerAnswer{}, false, fmt.Errorf("get answer: %w", err)
	}
	answer, err := row.toDomain()
	if err != nil {
		return domain.PlayerAnswer{}, false, err
	}
	return answer, true, nil
}

// RecordAnswer inserts the ledger row and increments the score in one
// transaction. ON CONFLICT DO NOTHING makes the duplicate case a no-op.
func (s *Store) RecordAnswer(ctx context.Context, answer domain.PlayerAnswer) (domain.PlayerAnswer, bool, error) {
	row := toAnswerRow(answer)
	var (
		recorded = answer
		inserted bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().Model(&row).On("CONFLICT (player_id, question_id) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			existing, ok, err := getAnswer(ctx, tx, answer.PlayerID, answer.QuestionID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("insert answer: %w", domain.ErrAnswerExists)
			}
			recorded = existing
			return nil
		}
		res, err = tx.NewUpdate().Model((*playerRow)(nil)).
			Set("score = score + ?", answer.Points).
			Where("id = ?", answer.PlayerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("increment score: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrPlayerNotFound
		}
		inserted = true
		return nil
	})
	if err != nil {
		return domain.PlayerAnswer{}, false, err
	}
	return recorded, inserted, nil
}

func (s *Store) CountAnswers(ctx context.Context, sessionID, questionID string) (int, error) {
	n, err := s.db.NewSelect().Model((*answerRow)(nil)).
		Where("session_id = ?", sessionID).
		Where("question_id = ?", questionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return n, nil
}

func toQuestionRow(q domain.Question) questionRow {
	row := questionRow{
		ID:           q.ID,
		QuizID:       q.QuizID,
		OrderIndex:   q.OrderIndex,
		Text:         q.Text,
		Type:         string(q.Type),
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
	}
	if row.Options == nil {
		row.Options = []string{}
	}
	if e := q.Estimate; e != nil {
		row.EstimateMin = sql.NullString{String: e.Min.String(), Valid: true}
		row.EstimateMax = sql.NullString{String: e.Max.String(), Valid: true}
		row.EstimateCorrect = sql.NullString{String: e.Correct.String(), Valid: true}
	}
	return row
}

func toSessionRow(s domain.GameSession) sessionRow {
	row := sessionRow{
		ID:                   s.ID,
		QuizID:               s.QuizID,
		HostID:               s.HostID,
		JoinCode:             s.JoinCode,
		Status:               string(s.Status),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		AnswerRevealed:       s.AnswerRevealed,
		CreatedAt:            s.CreatedAt,
	}
	if s.QuestionStartTime != nil {
		row.QuestionStartTime = bun.NullTime{Time: *s.QuestionStartTime}
	}
	if s.RevealedAt != nil {
		row.RevealedAt = bun.NullTime{Time: *s.RevealedAt}
	}
	return row
}

func (r sessionRow) toDomain() domain.GameSession {
	s := domain.GameSession{
		ID:                   r.ID,
		QuizID:               r.QuizID,
		HostID:               r.HostID,
		JoinCode:             r.JoinCode,
		Status:               domain.SessionStatus(r.Status),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		AnswerRevealed:       r.AnswerRevealed,
		CreatedAt:            r.CreatedAt.UTC(),
	}
	if !r.QuestionStartTime.IsZero() {
		t := r.QuestionStartTime.Time.UTC()
		s.QuestionStartTime = &t
	}
	if !r.RevealedAt.IsZero() {
		t := r.RevealedAt.Time.UTC()
		s.RevealedAt = &t
	}
	return s
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{ID: r.ID, SessionID: r.SessionID, Nickname: r.Nickname, Score: r.Score, JoinedAt: r.JoinedAt.UTC()}
}

func toAnswerRow(a domain.PlayerAnswer) answerRow {
	row := answerRow{
		ID:         a.ID,
		SessionID:  a.SessionID,
		PlayerID:   a.PlayerID,
		QuestionID: a.QuestionID,
		LatencyMs:  a.LatencyMs,
		Points:     a.Points,
		CreatedAt:  a.CreatedAt,
	}
	if a.AnswerIndex != nil {
		row.AnswerIndex = sql.NullInt64{Int64: int64(*a.AnswerIndex), Valid: true}
	}
	if a.Estimate != nil {
		row.Estimate = sql.NullString{String: a.Estimate.String(), Valid: true}
	}
	return row
}

func (r answerRow) toDomain() (domain.PlayerAnswer, error) {
	a := domain.PlayerAnswer{
		ID:         r.ID,
		SessionID:  r.SessionID,
		PlayerID:   r.PlayerID,
		QuestionID: r.QuestionID,
		LatencyMs:  r.LatencyMs,
		Points:     r.Points,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.AnswerIndex.Valid {
		idx := int(r.AnswerIndex.Int64)
		a.AnswerIndex = &idx
	}
	if r.Estimate.Valid {
		est, err := decimal.NewFromString(r.Estimate.String)
		if err != nil {
			return domain.PlayerAnswer{}, fmt.Errorf("parse estimate: %w", err)
		}
		a.Estimate = &est
	}
	return a, nil
}

// sqlState is implemented by pgdriver.Error.
type sqlState interface {
	Field(k byte) string
}

func pgCode(err error) string {
	var pgErr sqlState
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}
