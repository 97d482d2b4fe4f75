// Package list реализует HTTP-обработчик для получения каталога шаблонов карт.
package list

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/pereloman/cardperks/internal/http/response"
	"github.com/pereloman/cardperks/internal/models"
)

// Handler управляет HTTP-запросами на получение каталога шаблонов.
type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

// Catalog описывает интерфейс каталога шаблонов.
type Catalog interface {
	All() []*models.Template
}

// New создает новый Handler с переданными логгером и каталогом.
func New(log *slog.Logger, catalog Catalog) *Handler {
	return &Handler{
		log:     log,
		catalog: catalog,
	}
}

// ServeHTTP обрабатывает HTTP-запрос на получение всех шаблонов каталога.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.template.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res := h.catalog.All()

	log.Info("success to list templates", slog.Int("count", len(res)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"list_count": len(res),
		"templates":  res,
	}))
}
