package contextkeys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
}

func TestOrgID(t *testing.T) {
	_, ok := GetOrgID(context.Background())
	assert.False(t, ok)

	orgID, ok := GetOrgID(WithOrgID(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), orgID)
}

func TestRequestStartTime(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := GetRequestStartTime(WithRequestStartTime(context.Background(), start))
	assert.True(t, ok)
	assert.Equal(t, start, got)
}
