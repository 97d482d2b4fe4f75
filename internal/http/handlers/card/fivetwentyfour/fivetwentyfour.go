// Package fivetwentyfour реализует HTTP-обработчик статуса правила 5/24.
package fivetwentyfour

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/pereloman/cardperks/internal/http/middlewarectx"
	"github.com/pereloman/cardperks/internal/http/response"
	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
)

// Handler обрабатывает запросы статуса 5/24.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики подсчёта 5/24.
type Service interface {
	FiveTwentyFour(ctx context.Context, username string) (*models.FiveTwentyFour, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP возвращает количество карт пользователя, открытых за
// последние 24 месяца, и дату выпадения каждой из окна.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.card.fivetwentyfour"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	username, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || username == "" {
		log.Error("username not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.service.FiveTwentyFour(r.Context(), username)
	if err != nil {
		log.Error("failed to compute 5/24 status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to compute 5/24 status"))
		return
	}

	log.Info("5/24 status", "count", res.Count, "status", res.Status)
	render.JSON(w, r, response.OKWithData(map[string]any{
		"five_twenty_four": res,
	}))
}
