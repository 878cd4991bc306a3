package offlinetoken_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luthierpro/license-service/internal/lib/offlinetoken"
)

func TestMaker_GenerateAndParse(t *testing.T) {
	maker := offlinetoken.NewMaker("test-secret")

	token, err := maker.Generate("LP-AAAA-BBBB-CCCC", "mensal", true, time.Now().Add(5*24*time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := maker.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "LP-AAAA-BBBB-CCCC", claims.Code)
	assert.Equal(t, "mensal", claims.PlanType)
	assert.True(t, claims.Flagged)
}

func TestMaker_ExpiredToken(t *testing.T) {
	maker := offlinetoken.NewMaker("test-secret")

	token, err := maker.Generate("LP-AAAA-BBBB-CCCC", "mensal", false, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = maker.Parse(token)
	assert.Error(t, err)
}

func TestMaker_WrongSecret(t *testing.T) {
	maker := offlinetoken.NewMaker("test-secret")
	other := offlinetoken.NewMaker("other-secret")

	token, err := maker.Generate("LP-AAAA-BBBB-CCCC", "vitalicio", false, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.Error(t, err)
}
