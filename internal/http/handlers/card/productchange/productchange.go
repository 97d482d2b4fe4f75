// Package productchange реализует HTTP-обработчик смены продукта карты.
//
// Смена продукта переводит существующую карту на другой продукт банка
// с сохранением истории событий и пересчетом расписания годовой платы.
package productchange

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/pereloman/cardperks/internal/http/response"
	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
	cardservice "github.com/pereloman/cardperks/internal/services/card"
)

// Handler обрабатывает запросы на смену продукта карты.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики смены продукта.
type Service interface {
	ProductChange(ctx context.Context, id int, req models.DummyProductChange) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает HTTP-запрос на смену продукта карты по ID.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.card.productchange"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	var req models.DummyProductChange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.ProductChange(r.Context(), id, req); err != nil {
		log.Error("failed to change card product", sl.Err(err))
		switch {
		case errors.Is(err, cardservice.ErrClosedProductChange),
			errors.Is(err, cardservice.ErrSameTemplate),
			errors.Is(err, cardservice.ErrChangeBeforeOpen),
			errors.Is(err, cardservice.ErrTemplateNotFound):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not change card product"))
		}
		return
	}

	log.Info("success to change card product", slog.Int("id", id))
	render.JSON(w, r, response.OK())
}
