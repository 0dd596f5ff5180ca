package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID  string           `json:"questionId"`
	AnswerIndex *int             `json:"answerIndex,omitempty"`
	Estimate    *decimal.Decimal `json:"estimate,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades to a websocket and pushes a fresh snapshot every time the
// session changes. Players identified by playerId may also send answers.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	viewer := app.Viewer{HostID: r.URL.Query().Get("hostId"), PlayerID: r.URL.Query().Get("playerId")}
	session, err := h.service.LookupSession(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	log := h.log.WithFields(logrus.Fields{"session": session.ID, "player": viewer.PlayerID})

	updates, cancel, err := h.notifier.Subscribe(r.Context(), session.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
				var msg outboundMessage[any]
				snap, err := h.service.Snapshot(r.Context(), code, viewer)
				if err != nil {
					msg = outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
				} else {
					msg = outboundMessage[any]{Type: "snapshot", Payload: snap}
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			if viewer.PlayerID == "" {
				reply(outboundMessage[any]{Type: "error", Payload: toErrorPayload(domain.ErrPlayerNotFound)})
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "validation", Message: "invalid answer payload"}})
				continue
			}
			sub := domain.Submission{AnswerIndex: payload.AnswerIndex, Estimate: payload.Estimate}
			outcome, err := h.service.SubmitAnswer(r.Context(), code, viewer.PlayerID, payload.QuestionID, sub)
			if err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)})
				continue
			}
			reply(outboundMessage[any]{Type: "answerResult", Payload: outcome})
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "validation", Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func toErrorPayload(err error) errorPayload {
	code := domain.ErrorCode(err)
	if code == "internal" {
		return errorPayload{Code: code, Message: "internal error"}
	}
	return errorPayload{Code: code, Message: err.Error()}
}
