package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheck(t *testing.T) {
	up := NewHealthChecker(pingFunc(func(context.Context) error { return nil }))
	assert.Equal(t, "healthy", up.Check(context.Background()).Status)

	down := NewHealthChecker(pingFunc(func(context.Context) error { return errors.New("refused") }))
	st := down.Check(context.Background())
	assert.Equal(t, "unhealthy", st.Status)
	assert.Equal(t, "unhealthy", st.Database.Status)
}
