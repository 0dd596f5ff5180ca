package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// HostHeader carries the authenticated host id. Authentication itself happens
// in front of this service.
const HostHeader = "X-Host-ID"

// GameService is the part of app.GameService the transport exposes.
type GameService interface {
	CreateQuiz(ctx context.Context, ownerID string, draft domain.Quiz) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	GetQuiz(ctx context.Context, ownerID, quizID string) (domain.Quiz, error)
	DeleteQuiz(ctx context.Context, ownerID, quizID string) error

	CreateSession(ctx context.Context, hostID, quizID string) (domain.GameSession, error)
	LookupSession(ctx context.Context, code string) (domain.GameSession, error)
	Join(ctx context.Context, code, nickname string) (domain.Player, error)
	Snapshot(ctx context.Context, code string, viewer app.Viewer) (app.Snapshot, error)

	Start(ctx context.Context, code, hostID string) (domain.GameSession, error)
	Reveal(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error)
	Advance(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error)
	Next(ctx context.Context, code, hostID string, expectIndex *int) (domain.GameSession, error)
	End(ctx context.Context, code, hostID string) (domain.GameSession, error)

	SubmitAnswer(ctx context.Context, code, playerID, questionID string, sub domain.Submission) (app.AnswerOutcome, error)
}

// Handler serves the REST API and the websocket push stream.
type Handler struct {
	service  GameService
	notifier app.Notifier
	validate *validator.Validate
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewHandler(service GameService, notifier app.Notifier, log logrus.FieldLogger) *Handler {
	return &Handler{
		service:  service,
		notifier: notifier,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Router wires every route onto a gorilla/mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/quizzes", h.createQuiz).Methods(http.MethodPost)
	api.HandleFunc("/quizzes", h.listQuizzes).Methods(http.MethodGet)
	api.HandleFunc("/quizzes/{id}", h.getQuiz).Methods(http.MethodGet)
	api.HandleFunc("/quizzes/{id}", h.deleteQuiz).Methods(http.MethodDelete)

	api.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{code}", h.snapshot).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{code}/players", h.join).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{code}/answers", h.submitAnswer).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{code}/{action:start|reveal|advance|next|end}", h.hostAction).Methods(http.MethodPost)

	r.HandleFunc("/ws/sessions/{code}", h.ServeWS)
	return r
}

type questionRequest struct {
	Text         string           `json:"text" validate:"required"`
	Type         string           `json:"type" validate:"required,oneof=multiple_choice true_false estimate"`
	Options      []string         `json:"options" validate:"max=4"`
	CorrectIndex int              `json:"correctIndex" validate:"min=0"`
	Estimate     *estimateRequest `json:"estimate" validate:"required_if=Type estimate"`
}

type estimateRequest struct {
	Min     string `json:"min" validate:"required,numeric"`
	Max     string `json:"max" validate:"required,numeric"`
	Correct string `json:"correct" validate:"required,numeric"`
}

type createQuizRequest struct {
	Title     string            `json:"title" validate:"required,max=200"`
	Gamified  bool              `json:"gamified"`
	Questions []questionRequest `json:"questions" validate:"required,min=1,dive"`
}

type createSessionRequest struct {
	QuizID string `json:"quizId" validate:"required"`
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type hostActionRequest struct {
	QuestionIndex *int `json:"questionIndex" validate:"omitempty,min=0"`
}

type answerRequest struct {
	PlayerID    string           `json:"playerId" validate:"required"`
	QuestionID  string           `json:"questionId" validate:"required"`
	AnswerIndex *int             `json:"answerIndex" validate:"required_without=Estimate"`
	Estimate    *decimal.Decimal `json:"estimate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	hostID, ok := h.requireHost(w, r)
	if !ok {
		return
	}
	var req createQuizRequest
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), hostID, draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	hostID, ok := h.requireHost(w, r)
	if !ok {
		return
	}
	quizzes, err := h.service.ListQuizzes(r.Context(), hostID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	hostID, ok := h.requireHost(w, r)
	if !ok {
		return
	}
	quiz, err := h.service.GetQuiz(r.Context(), hostID, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	hostID, ok := h.requireHost(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteQuiz(r.Context(), hostID, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	hostID, ok := h.requireHost(w, r)
	if !ok {
		return
	}
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.service.CreateSession(r.Context(), hostID, req.QuizID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	viewer := app.Viewer{HostID: r.Header.Get(HostHeader), PlayerID: r.URL.Query().Get("playerId")}
	snap, err := h.service.Snapshot(r.Context(), mux.Vars(r)["code"], viewer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	player, err := h.service.Join(r.Context(), mux.Vars(r)["code"], req.Nickname)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (h *Handler) hostAction(w http.ResponseWriter, r *http.Request) {
	hostID, ok := h.requireHost(w, r)
	if !ok {
		return
	}
	var req hostActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	code := vars["code"]

	var (
		session domain.GameSession
		err     error
	)
	switch vars["action"] {
	case "start":
		session, err = h.service.Start(r.Context(), code, hostID)
	case "reveal":
		session, err = h.service.Reveal(r.Context(), code, hostID, req.QuestionIndex)
	case "advance":
		session, err = h.service.Advance(r.Context(), code, hostID, req.QuestionIndex)
	case "next":
		session, err = h.service.Next(r.Context(), code, hostID, req.QuestionIndex)
	case "end":
		session, err = h.service.End(r.Context(), code, hostID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	sub := domain.Submission{AnswerIndex: req.AnswerIndex, Estimate: req.Estimate}
	outcome, err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["code"], req.PlayerID, req.QuestionID, sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (req createQuizRequest) toDraft() (domain.Quiz, error) {
	draft := domain.Quiz{Title: req.Title, Gamified: req.Gamified, Questions: make([]domain.Question, len(req.Questions))}
	for i, q := range req.Questions {
		question := domain.Question{
			Text:         q.Text,
			Type:         domain.QuestionType(q.Type),
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
		}
		if q.Estimate != nil {
			est, err := q.Estimate.toRange()
			if err != nil {
				return domain.Quiz{}, fmt.Errorf("question %d: %w", i+1, err)
			}
			question.Estimate = &est
		}
		draft.Questions[i] = question
	}
	return draft, nil
}

func (e estimateRequest) toRange() (domain.EstimateRange, error) {
	var (
		out domain.EstimateRange
		err error
	)
	if out.Min, err = decimal.NewFromString(e.Min); err != nil {
		return out, fmt.Errorf("%w: estimate min: %v", domain.ErrValidation, err)
	}
	if out.Max, err = decimal.NewFromString(e.Max); err != nil {
		return out, fmt.Errorf("%w: estimate max: %v", domain.ErrValidation, err)
	}
	if out.Correct, err = decimal.NewFromString(e.Correct); err != nil {
		return out, fmt.Errorf("%w: estimate correct: %v", domain.ErrValidation, err)
	}
	return out, nil
}

func (h *Handler) requireHost(w http.ResponseWriter, r *http.Request) (string, bool) {
	hostID := r.Header.Get(HostHeader)
	if hostID == "" {
		h.writeError(w, r, fmt.Errorf("%w: missing %s header", domain.ErrValidation, HostHeader))
		return "", false
	}
	return hostID, true
}

// decode reads an optional JSON body into dst and validates it. An empty
// body leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, fmt.Errorf("%w: malformed body: %v", domain.ErrValidation, err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidNickname),
		errors.Is(err, domain.ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionFinished),
		errors.Is(err, domain.ErrAnswerWindowClosed),
		errors.Is(err, domain.ErrQuestionNotActive),
		errors.Is(err, domain.ErrJoinCodeTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Code: domain.ErrorCode(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over a recorded connection.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("http request")
	})
}
