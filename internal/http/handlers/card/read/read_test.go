package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pereloman/cardperks/internal/models"
)

// MockService реализует интерфейс read.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Read(ctx context.Context, id int) (*models.Card, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*models.Card), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestReadHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	openDate := time.Date(2023, 4, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		url            string
		mockID         int
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "успешное чтение карты",
			url:    "/cards/123",
			mockID: 123,
			setupMock: func(m *MockService) {
				card := &models.Card{
					ID:       123,
					Name:     "Sapphire Preferred",
					Issuer:   "Chase",
					Username: "testuser",
					Status:   "active",
					OpenDate: &openDate,
				}
				m.On("Read", mock.Anything, 123).Return(card, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"Name":"Sapphire Preferred"`,
		},
		{
			name:           "некорректный id в URL",
			url:            "/cards/abc",
			mockID:         0,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"failed to decode id from url"}`,
		},
		{
			name:   "ошибка сервиса чтения",
			url:    "/cards/777",
			mockID: 777,
			setupMock: func(m *MockService) {
				m.On("Read", mock.Anything, 777).Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not read card"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			// Устанавливаем URL params с помощью роутера chi
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", strings.TrimPrefix(tt.url, "/cards/"))
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
