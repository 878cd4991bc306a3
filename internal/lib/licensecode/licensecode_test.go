package licensecode_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/luthierpro/license-service/internal/lib/licensecode"
)

var (
	codePattern  = regexp.MustCompile(`^LP-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)
	trialPattern = regexp.MustCompile(`^LP-T7-[0-9A-F]{4}-[0-9A-F]{4}$`)
)

func TestNew_Format(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Regexp(t, codePattern, licensecode.New())
	}
}

func TestNewTrial_Format(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Regexp(t, trialPattern, licensecode.NewTrial())
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code := licensecode.New()
		_, dup := seen[code]
		assert.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "LP-AAAA-BBBB-CCCC", licensecode.Normalize("  lp-aaaa-bbbb-cccc "))
}
