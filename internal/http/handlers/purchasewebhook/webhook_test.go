package purchasewebhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/luthierpro/license-service/internal/services/lifecycle"
)

// MockService реализует интерфейс purchasewebhook.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Process(ctx context.Context, ev *lifecycle.Event) (*lifecycle.Result, error) {
	args := m.Called(ctx, ev)
	if res := args.Get(0); res != nil {
		return res.(*lifecycle.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestWebhookHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		method         string
		body           string
		header         string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "вложенный формат с hottok в заголовке",
			method: http.MethodPost,
			header: "top-secret",
			body: `{
				"event": "PURCHASE_APPROVED",
				"data": {
					"purchase": {"status": "APPROVED", "transaction": "TX-1"},
					"buyer": {"email": "buyer@example.com", "name": "Buyer"},
					"product": {"id": 6436614},
					"subscription": {"status": "ACTIVE"}
				}
			}`,
			setupMock: func(m *MockService) {
				m.On("Process", mock.Anything, mock.MatchedBy(func(ev *lifecycle.Event) bool {
					return ev.Name == "PURCHASE_APPROVED" &&
						ev.Email == "buyer@example.com" &&
						ev.OrderID == "TX-1" &&
						ev.ProductID == 6436614 &&
						ev.SubscriptionStatus == "ACTIVE"
				})).Return(&lifecycle.Result{Action: lifecycle.ActionCreated}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"action":"created"`,
		},
		{
			name:   "плоский формат с hottok в теле",
			method: http.MethodPost,
			body: `{
				"hottok": "top-secret",
				"status": "approved",
				"email": "buyer@example.com",
				"first_name": "Buyer",
				"prod": 6449475,
				"transaction": "TX-2"
			}`,
			setupMock: func(m *MockService) {
				m.On("Process", mock.Anything, mock.MatchedBy(func(ev *lifecycle.Event) bool {
					return ev.PurchaseStatus == "APPROVED" &&
						ev.Email == "buyer@example.com" &&
						ev.BuyerName == "Buyer" &&
						ev.ProductID == 6449475 &&
						ev.OrderID == "TX-2"
				})).Return(&lifecycle.Result{Action: lifecycle.ActionExtended}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"action":"extended"`,
		},
		{
			name:           "неверный hottok",
			method:         http.MethodPost,
			header:         "wrong",
			body:           `{"event":"PURCHASE_APPROVED"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `unauthorized`,
		},
		{
			name:           "отсутствие hottok",
			method:         http.MethodPost,
			body:           `{"event":"PURCHASE_APPROVED"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `unauthorized`,
		},
		{
			name:   "ошибка обработки подтверждается кодом 200",
			method: http.MethodPost,
			header: "top-secret",
			body:   `{"event":"PURCHASE_APPROVED","data":{"buyer":{"email":"x@y.com"}}}`,
			setupMock: func(m *MockService) {
				m.On("Process", mock.Anything, mock.Anything).
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"action":"error"`,
		},
		{
			name:           "GET отвечает статусом up без аутентификации",
			method:         http.MethodGet,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"up"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New("top-secret", mockService, logger)

			req := httptest.NewRequest(tt.method, "/webhook/purchase", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("X-Provider-Hottok", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}

func TestPayloadToEvent_NestedFieldsWin(t *testing.T) {
	payload := Payload{
		Status:      "refunded",
		Email:       "flat@example.com",
		Transaction: "TX-FLAT",
	}
	payload.Data.Purchase.Status = "APPROVED"
	payload.Data.Purchase.Transaction = "TX-NESTED"
	payload.Data.Buyer.Email = "nested@example.com"

	ev := payload.ToEvent()
	assert.Equal(t, "APPROVED", ev.PurchaseStatus)
	assert.Equal(t, "nested@example.com", ev.Email)
	assert.Equal(t, "TX-NESTED", ev.OrderID)
}
