package redeem

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	licensesvc "github.com/luthierpro/license-service/internal/services/license"
	"github.com/luthierpro/license-service/internal/storage"
)

// MockService реализует интерфейс redeem.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Redeem(ctx context.Context, email string) (*licensesvc.RedeemResult, error) {
	args := m.Called(ctx, email)
	if res := args.Get(0); res != nil {
		return res.(*licensesvc.RedeemResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRedeemHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	expires := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная выдача кода",
			body: `{"email":"user@example.com"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "user@example.com").
					Return(&licensesvc.RedeemResult{
						Email:     "user@example.com",
						Code:      "LP-AAAA-BBBB-CCCC",
						PlanType:  "mensal",
						ExpiresAt: &expires,
					}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"code":"LP-AAAA-BBBB-CCCC"`,
		},
		{
			name: "нет записей по почте",
			body: `{"email":"none@example.com"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "none@example.com").
					Return(nil, storage.ErrLicenseNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `not_found`,
		},
		{
			name:           "некорректная почта",
			body:           `{"email":"not-an-email"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field Email must be a valid email`,
		},
		{
			name:           "пустое тело запроса",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field Email is a required field`,
		},
		{
			name: "ошибка хранилища",
			body: `{"email":"err@example.com"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, "err@example.com").
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `server_error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
