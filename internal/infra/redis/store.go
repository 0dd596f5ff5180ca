package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// Store is a Redis implementation of app.Store and app.QuizLoader.
//
// Layout:
//
//	quiz:quiz:{id}                        quiz JSON with questions
//	quiz:quiz:{id}:sessions               SET of session ids playing the quiz
//	quiz:owner:{owner}                    ZSET of quiz ids by creation time
//	quiz:session:{id}                     session JSON
//	quiz:code:{code}                      id of the session that last took the code
//	quiz:player:{id}                      player JSON (score lives in the roster)
//	quiz:session:{id}:roster              ZSET player id -> score
//	quiz:session:{id}:answers:{question}  HASH player id -> answer JSON
//
// Session keys expire after ttl; quizzes do not.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// recordAnswerScript inserts the ledger entry and bumps the roster score in
// one step, or returns the entry already recorded for the player.
var recordAnswerScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
  redis.call('ZINCRBY', KEYS[2], ARGV[3], ARGV[1])
  if tonumber(ARGV[4]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[4])
  end
  return {1, ARGV[2]}
end
return {0, redis.call('HGET', KEYS[1], ARGV[1])}
`)

func quizKey(id string) string          { return "quiz:quiz:" + id }
func quizSessionsKey(id string) string  { return "quiz:quiz:" + id + ":sessions" }
func ownerKey(owner string) string      { return "quiz:owner:" + owner }
func sessionKey(id string) string       { return "quiz:session:" + id }
func codeKey(code string) string        { return "quiz:code:" + code }
func playerKey(id string) string        { return "quiz:player:" + id }
func rosterKey(sessionID string) string { return "quiz:session:" + sessionID + ":roster" }

func answersKey(sessionID, questionID string) string {
	return "quiz:session:" + sessionID + ":answers:" + questionID
}

func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, quizKey(quiz.ID), data, 0)
		pipe.ZAdd(ctx, ownerKey(quiz.OwnerID), redis.Z{Score: float64(quiz.CreatedAt.UnixMilli()), Member: quiz.ID})
		return nil
	})
	return err
}

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := s.getJSON(ctx, quizKey(quizID), &quiz); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	ids, err := s.client.ZRevRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Quiz, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = quizKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var quiz domain.Quiz
		if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		quiz.Questions = nil
		out = append(out, quiz)
	}
	return out, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	quiz, err := s.LoadQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	sessionIDs, err := s.client.SMembers(ctx, quizSessionsKey(quizID)).Result()
	if err != nil {
		return err
	}

	keys := []string{quizKey(quizID), quizSessionsKey(quizID)}
	for _, id := range sessionIDs {
		keys = append(keys, sessionKey(id), rosterKey(id))
		players, err := s.client.ZRange(ctx, rosterKey(id), 0, -1).Result()
		if err != nil {
			return err
		}
		for _, p := range players {
			keys = append(keys, playerKey(p))
		}
		for _, q := range quiz.Questions {
			keys = append(keys, answersKey(id, q.ID))
		}
		if session, err := s.GetSession(ctx, id); err == nil {
			if owner, _ := s.client.Get(ctx, codeKey(session.JoinCode)).Result(); owner == id {
				keys = append(keys, codeKey(session.JoinCode))
			}
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, ownerKey(quiz.OwnerID), quizID)
		return nil
	})
	return err
}

// CreateSession claims the join code with WATCH so two creators racing for
// the same code cannot both win.
func (s *Store) CreateSession(ctx context.Context, session domain.GameSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := codeKey(session.JoinCode)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var current domain.GameSession
			err := getJSON(ctx, tx, sessionKey(holder), &current)
			if err == nil && current.Active() {
				return domain.ErrJoinCodeTaken
			}
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(session.ID), data, s.ttl)
			pipe.Set(ctx, key, session.ID, s.ttl)
			pipe.SAdd(ctx, quizSessionsKey(session.QuizID), session.ID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrJoinCodeTaken
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	var session domain.GameSession
	if err := s.getJSON(ctx, sessionKey(sessionID), &session); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.GameSession{}, domain.ErrSessionNotFound
		}
		return domain.GameSession{}, err
	}
	return session, nil
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (domain.GameSession, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, err
	}
	return s.GetSession(ctx, id)
}

func (s *Store) UpdateSession(ctx context.Context, next domain.GameSession, expect domain.SessionState) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(next.ID)
	applied := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current domain.GameSession
		if err := getJSON(ctx, tx, key, &current); err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrSessionNotFound
			}
			return err
		}
		if current.State() != expect {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) AddPlayer(ctx context.Context, player domain.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, playerKey(player.ID), data, s.ttl)
		pipe.ZAdd(ctx, rosterKey(player.SessionID), redis.Z{Score: float64(player.Score), Member: player.ID})
		if s.ttl > 0 {
			pipe.Expire(ctx, rosterKey(player.SessionID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (domain.Player, error) {
	var player domain.Player
	if err := s.getJSON(ctx, playerKey(playerID), &player); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Player{}, domain.ErrPlayerNotFound
		}
		return domain.Player{}, err
	}
	score, err := s.client.ZScore(ctx, rosterKey(player.SessionID), playerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Player{}, err
	}
	player.Score = int(score)
	return player, nil
}

func (s *Store) ListPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	entries, err := s.client.ZRangeWithScores(ctx, rosterKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Player, 0, len(entries))
	if len(entries) == 0 {
		return out, nil
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = playerKey(e.Member.(string))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var player domain.Player
		if err := json.Unmarshal([]byte(raw), &player); err != nil {
			return nil, fmt.Errorf("unmarshal player: %w", err)
		}
		player.Score = int(entries[i].Score)
		out = append(out, player)
	}
	domain.SortRoster(out)
	return out, nil
}

func (s *Store) GetAnswer(ctx context.Context, playerID, questionID string) (domain.PlayerAnswer, bool, error) {
	player, err := s.GetPlayer(ctx, playerID)
	if errors.Is(err, domain.ErrPlayerNotFound) {
		return domain.PlayerAnswer{}, false, nil
	}
	if err != nil {
		return domain.PlayerAnswer{}, false, err
	}
	raw, err := s.client.HGet(ctx, answersKey(player.SessionID, questionID), playerID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PlayerAnswer{}, false, nil
	}
	if err != nil {
		return domain.PlayerAnswer{}, false, err
	}
	var answer domain.PlayerAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return domain.PlayerAnswer{}, false, fmt.Errorf("unmarshal answer: %w", err)
	}
	return answer, true, nil
}

func (s *Store) RecordAnswer(ctx context.Context, answer domain.PlayerAnswer) (domain.PlayerAnswer, bool, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return domain.PlayerAnswer{}, false, fmt.Errorf("marshal answer: %w", err)
	}
	keys := []string{answersKey(answer.SessionID, answer.QuestionID), rosterKey(answer.SessionID)}
	res, err := recordAnswerScript.Run(ctx, s.client, keys, answer.PlayerID, string(data), answer.Points, s.ttl.Milliseconds()).Slice()
	if err != nil {
		return domain.PlayerAnswer{}, false, err
	}
	if len(res) != 2 {
		return domain.PlayerAnswer{}, false, fmt.Errorf("record answer: unexpected reply %v", res)
	}
	inserted, _ := res[0].(int64)
	raw, _ := res[1].(string)
	var recorded domain.PlayerAnswer
	if err := json.Unmarshal([]byte(raw), &recorded); err != nil {
		return domain.PlayerAnswer{}, false, fmt.Errorf("unmarshal answer: %w", err)
	}
	return recorded, inserted == 1, nil
}

func (s *Store) CountAnswers(ctx context.Context, sessionID, questionID string) (int, error) {
	n, err := s.client.HLen(ctx, answersKey(sessionID, questionID)).Result()
	return int(n), err
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	return getJSON(ctx, s.client, key, v)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, c getter, key string, v any) error {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
