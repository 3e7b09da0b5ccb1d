package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when unset", func(t *testing.T) {
		assert.Equal(t, uuid.Nil, UserID(ctx))
		assert.Empty(t, RequestID(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("returns injected values", func(t *testing.T) {
		userID := uuid.New()
		fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		ctx := WithTime(WithRequestID(WithUserID(ctx, userID), "req-1"), fixed)

		assert.Equal(t, userID, UserID(ctx))
		assert.Equal(t, "req-1", RequestID(ctx))
		assert.Equal(t, fixed, Now(ctx))
	})
}
