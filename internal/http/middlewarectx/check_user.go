package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/pereloman/cardperks/internal/http/response"
	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
)

// CardReader возвращает карту по ID для проверки владельца.
type CardReader interface {
	Read(ctx context.Context, id int) (*models.Card, error)
}

// CardOwnerMiddleware проверяет, что карта из URL-параметра {id}
// принадлежит пользователю из контекста. Администраторы проходят всегда.
func CardOwnerMiddleware(cards CardReader, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.CardOwnerMiddleware"
			log := log.With(slog.String("op", op))

			username, ok := r.Context().Value(User).(string)
			if !ok || username == "" {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			if role, _ := r.Context().Value(Role).(string); role == "admin" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := strconv.Atoi(chi.URLParam(r, "id"))
			if err != nil {
				log.Error("failed to decode id from url", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.Error("invalid card id"))
				return
			}

			card, err := cards.Read(r.Context(), id)
			if err != nil {
				log.Error("failed to read card", sl.Err(err))
				w.WriteHeader(http.StatusNotFound)
				render.JSON(w, r, response.Error("card not found"))
				return
			}
			if card.Username != username {
				log.Error("card belongs to another user", slog.Int("card_id", id))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
