package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/philosophers/agora/backend/internal/model/chat"
	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/internal/service/ai"
	sessionService "github.com/philosophers/agora/backend/internal/service/session"
	"github.com/philosophers/agora/backend/pkg/utils"
)

var logger = logrus.WithField("component", "handler.session")

// Controller is the part of the session service the HTTP surface drives.
type Controller interface {
	Snapshot() sessionService.Snapshot
	SwitchPersona(ctx context.Context, id persona.ID) error
	Send(ctx context.Context, text string) (chat.Message, error)
	Clear(ctx context.Context) error
	Subscribe() (<-chan sessionService.Snapshot, func())
}

// Handler 会话的HTTP处理器
type Handler struct {
	session Controller
	ws      *socket
}

// New 创建会话处理器
func New(s Controller) *Handler {
	return &Handler{
		session: s,
		ws:      newSocket(s),
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.handleSnapshot)
		r.Put("/persona", h.handleSwitchPersona)
		r.Post("/messages", h.handleSend)
		r.Delete("/messages", h.handleClear)
		r.Get("/ws", h.ws.handle)
	})
}

type sendResponse struct {
	Message  chat.Message            `json:"message"`
	Snapshot sessionService.Snapshot `json:"snapshot"`
	Error    string                  `json:"error,omitempty"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleSwitchPersona(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := persona.ParseID(payload.PersonaID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.session.SwitchPersona(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.session.Send(r.Context(), payload.Text)

	var completionErr *ai.CompletionError
	switch {
	case err == nil:
	case errors.Is(err, sessionService.ErrPersist):
		respondSessionError(w, err)
		return
	case errors.As(err, &completionErr):
		// the failure is already the assistant's message; the exchange itself succeeded
	default:
		respondSessionError(w, err)
		return
	}

	resp := sendResponse{Message: msg, Snapshot: h.session.Snapshot()}
	if completionErr != nil {
		resp.Error = completionErr.Kind.Error()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Clear(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, persona.ErrNotFound), errors.Is(err, persona.ErrUnknownPersona):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sessionService.ErrBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sessionService.ErrClosed):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.WithError(err).Error("session request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
