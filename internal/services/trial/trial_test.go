package trial

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/luthierpro/license-service/internal/models"
	"github.com/luthierpro/license-service/internal/storage"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) FindTrial(ctx context.Context, email string) (*models.License, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.License), args.Error(1)
}

func (m *RepoMock) Create(ctx context.Context, lic *models.License) (*models.License, error) {
	args := m.Called(ctx, lic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.License), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestGetOrCreate_CreatesNewTrial(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindTrial", mock.Anything, "user@example.com").Return(nil, storage.ErrLicenseNotFound).Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(l *models.License) bool {
		// Дата истечения не проставляется: двухфазная активация.
		return strings.HasPrefix(l.Code, "LP-T7-") &&
			l.Email == "user@example.com" &&
			l.PlanType == models.PlanTrial7 &&
			l.Status == models.StatusAtivo &&
			!l.Blocked &&
			l.ExpiresAt == nil &&
			l.MaxDevices == MaxDevices
	})).Return(&models.License{Code: "LP-T7-AAAA-BBBB"}, nil).Once()

	svc := New(repo, newNoopLogger())
	code, created, err := svc.GetOrCreate(context.Background(), " User@Example.COM ")

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "LP-T7-AAAA-BBBB", code)
	repo.AssertExpectations(t)
}

func TestGetOrCreate_ReusesExistingTrial(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindTrial", mock.Anything, "user@example.com").
		Return(&models.License{Code: "LP-T7-EXIST"}, nil).Once()

	svc := New(repo, newNoopLogger())
	code, created, err := svc.GetOrCreate(context.Background(), "user@example.com")

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "LP-T7-EXIST", code)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestGetOrCreate_StorageError(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindTrial", mock.Anything, "user@example.com").
		Return(nil, errors.New("db down")).Once()

	svc := New(repo, newNoopLogger())
	_, _, err := svc.GetOrCreate(context.Background(), "user@example.com")

	assert.Error(t, err)
	repo.AssertExpectations(t)
}
