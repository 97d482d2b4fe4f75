// Package read реализует HTTP-обработчик для получения шаблона карты по ID.
package read

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/pereloman/cardperks/internal/http/response"
	"github.com/pereloman/cardperks/internal/models"
)

// Handler управляет HTTP-запросами на получение шаблона.
type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

// Catalog описывает интерфейс каталога шаблонов.
type Catalog interface {
	Resolve(templateID string) (*models.Template, bool)
	VersionHistory(templateID string) []models.TemplateVersion
}

// New создает новый Handler с переданными логгером и каталогом.
func New(log *slog.Logger, catalog Catalog) *Handler {
	return &Handler{
		log:     log,
		catalog: catalog,
	}
}

// ServeHTTP обрабатывает HTTP-запрос на получение шаблона с историей версий.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.template.read"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	templateID := chi.URLParam(r, "templateID")

	tmpl, ok := h.catalog.Resolve(templateID)
	if !ok {
		log.Error("template not found", slog.String("template_id", templateID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("template not found"))
		return
	}

	log.Info("success to read template", slog.String("template_id", templateID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"template": tmpl,
		"versions": h.catalog.VersionHistory(templateID),
	}))
}
