package persona

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/philosophers/agora/backend/internal/model/persona"
	"github.com/philosophers/agora/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas *persona.Registry
}

// New 创建persona处理器
func New(personas *persona.Registry) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/personas/{personaID}", h.handleGetPersona)
}

// handleListPersonas 列出所有persona，指令文本不对外暴露
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id, err := persona.ParseID(chi.URLParam(r, "personaID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}

	p, err := h.personas.Lookup(id)
	if errors.Is(err, persona.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
