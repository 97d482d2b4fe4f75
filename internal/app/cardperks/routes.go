// Package cardperks предоставляет маршруты для основного приложения.
package cardperks

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/pereloman/cardperks/internal/http/handlers/auth/login"
	"github.com/pereloman/cardperks/internal/http/handlers/auth/register"
	benefitcreate "github.com/pereloman/cardperks/internal/http/handlers/benefit/create"
	benefitlist "github.com/pereloman/cardperks/internal/http/handlers/benefit/list"
	benefitremove "github.com/pereloman/cardperks/internal/http/handlers/benefit/remove"
	benefitupdate "github.com/pereloman/cardperks/internal/http/handlers/benefit/update"
	benefitusage "github.com/pereloman/cardperks/internal/http/handlers/benefit/usage"
	cardclose "github.com/pereloman/cardperks/internal/http/handlers/card/close"
	cardcreate "github.com/pereloman/cardperks/internal/http/handlers/card/create"
	cardfivetwentyfour "github.com/pereloman/cardperks/internal/http/handlers/card/fivetwentyfour"
	cardlist "github.com/pereloman/cardperks/internal/http/handlers/card/list"
	cardproductchange "github.com/pereloman/cardperks/internal/http/handlers/card/productchange"
	cardread "github.com/pereloman/cardperks/internal/http/handlers/card/read"
	cardremove "github.com/pereloman/cardperks/internal/http/handlers/card/remove"
	cardreopen "github.com/pereloman/cardperks/internal/http/handlers/card/reopen"
	cardupdate "github.com/pereloman/cardperks/internal/http/handlers/card/update"
	categorycreate "github.com/pereloman/cardperks/internal/http/handlers/category/create"
	categorylist "github.com/pereloman/cardperks/internal/http/handlers/category/list"
	categoryremove "github.com/pereloman/cardperks/internal/http/handlers/category/remove"
	categoryupdate "github.com/pereloman/cardperks/internal/http/handlers/category/update"
	eventcreate "github.com/pereloman/cardperks/internal/http/handlers/event/create"
	eventlist "github.com/pereloman/cardperks/internal/http/handlers/event/list"
	eventremove "github.com/pereloman/cardperks/internal/http/handlers/event/remove"
	eventretention "github.com/pereloman/cardperks/internal/http/handlers/event/retention"
	eventupdate "github.com/pereloman/cardperks/internal/http/handlers/event/update"
	"github.com/pereloman/cardperks/internal/http/handlers/health"
	templatelist "github.com/pereloman/cardperks/internal/http/handlers/template/list"
	templateread "github.com/pereloman/cardperks/internal/http/handlers/template/read"
	"github.com/pereloman/cardperks/internal/http/middlewarectx"
	authservice "github.com/pereloman/cardperks/internal/services/auth"
	benefitservice "github.com/pereloman/cardperks/internal/services/benefit"
	cardservice "github.com/pereloman/cardperks/internal/services/card"
	categoryservice "github.com/pereloman/cardperks/internal/services/category"
	eventservice "github.com/pereloman/cardperks/internal/services/event"
	"github.com/pereloman/cardperks/internal/templates"
)

// Services собирает бизнес-сервисы, необходимые HTTP-слою.
type Services struct {
	Auth     *authservice.AuthService
	Card     *cardservice.CardService
	Benefit  *benefitservice.BenefitService
	Event    *eventservice.EventService
	Category *categoryservice.CategoryService
	Catalog  *templates.Catalog
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s *Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, s.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, s.Auth).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(s.Auth, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			r.Post("/cards", cardcreate.New(logger, s.Card).ServeHTTP)
			r.Get("/cards/list", cardlist.New(logger, s.Card).ServeHTTP)
			r.Get("/cards/524", cardfivetwentyfour.New(logger, s.Card).ServeHTTP)
			r.Get("/templates", templatelist.New(logger, s.Catalog).ServeHTTP)
			r.Get("/templates/{templateID}", templateread.New(logger, s.Catalog).ServeHTTP)

			// Операции над конкретной картой доступны только владельцу
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.CardOwnerMiddleware(s.Card, logger))

				r.Get("/cards/{id}", cardread.New(logger, s.Card).ServeHTTP)
				r.Put("/cards/{id}", cardupdate.New(logger, s.Card).ServeHTTP)
				r.Delete("/cards/{id}", cardremove.New(logger, s.Card).ServeHTTP)
				r.Post("/cards/{id}/close", cardclose.New(logger, s.Card).ServeHTTP)
				r.Post("/cards/{id}/reopen", cardreopen.New(logger, s.Card).ServeHTTP)
				r.Post("/cards/{id}/product-change", cardproductchange.New(logger, s.Card).ServeHTTP)

				r.Post("/cards/{id}/benefits", benefitcreate.New(logger, s.Benefit).ServeHTTP)
				r.Get("/cards/{id}/benefits", benefitlist.New(logger, s.Benefit).ServeHTTP)
				r.Put("/cards/{id}/benefits/{benefitID}", benefitupdate.New(logger, s.Benefit).ServeHTTP)
				r.Put("/cards/{id}/benefits/{benefitID}/usage", benefitusage.New(logger, s.Benefit).ServeHTTP)
				r.Delete("/cards/{id}/benefits/{benefitID}", benefitremove.New(logger, s.Benefit).ServeHTTP)

				r.Post("/cards/{id}/events", eventcreate.New(logger, s.Event).ServeHTTP)
				r.Get("/cards/{id}/events", eventlist.New(logger, s.Event).ServeHTTP)
				r.Put("/cards/{id}/events/{eventID}", eventupdate.New(logger, s.Event).ServeHTTP)
				r.Delete("/cards/{id}/events/{eventID}", eventremove.New(logger, s.Event).ServeHTTP)
				r.Post("/cards/{id}/retention-offers", eventretention.New(logger, s.Event).ServeHTTP)

				r.Post("/cards/{id}/categories", categorycreate.New(logger, s.Category).ServeHTTP)
				r.Get("/cards/{id}/categories", categorylist.New(logger, s.Category).ServeHTTP)
				r.Put("/cards/{id}/categories/{categoryID}", categoryupdate.New(logger, s.Category).ServeHTTP)
				r.Delete("/cards/{id}/categories/{categoryID}", categoryremove.New(logger, s.Category).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
