package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimitKeepsValidRequest(t *testing.T) {
	assert.Equal(t, 50, clampLimit(50, 100, 500))
}

func TestClampLimitSubstitutesDefaultWhenNonPositive(t *testing.T) {
	assert.Equal(t, 100, clampLimit(0, 100, 500))
	assert.Equal(t, 100, clampLimit(-1, 100, 500))
}

func TestClampLimitSubstitutesDefaultWhenOverMax(t *testing.T) {
	assert.Equal(t, 200, clampLimit(10_000, 200, 1000))
}

func TestClampLimitAllowsExactlyMax(t *testing.T) {
	assert.Equal(t, 500, clampLimit(500, 100, 500))
}
