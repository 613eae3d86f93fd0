package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type purgerFunc func(ctx context.Context, retention time.Duration) (int, error)

func (f purgerFunc) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	return f(ctx, retention)
}

var _ DLQPurger = purgerFunc(nil)

func TestGarbageCollector_Collect(t *testing.T) {
	t.Parallel()

	const retention = 72 * time.Hour

	tests := []struct {
		name       string
		purger     DLQPurger
		wantErr    bool
		wantPurged bool
	}{
		{name: "no purger configured", purger: nil},
		{name: "nothing to purge", purger: purgerFunc(func(context.Context, time.Duration) (int, error) { return 0, nil })},
		{name: "purges dead letters", purger: purgerFunc(func(_ context.Context, r time.Duration) (int, error) {
			if r != retention {
				return 0, errors.New("unexpected retention")
			}
			return 4, nil
		}), wantPurged: true},
		{name: "purge fails", purger: purgerFunc(func(context.Context, time.Duration) (int, error) {
			return 0, errors.New("channel closed")
		}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.InfoLevel)
			gc := NewGarbageCollector(tt.purger, time.Minute, retention, zap.New(core))

			err := gc.collect(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "channel closed")
				return
			}
			require.NoError(t, err)

			purged := logs.FilterMessage("dlq_gc_purged").All()
			if !tt.wantPurged {
				assert.Empty(t, purged)
				return
			}
			require.Len(t, purged, 1)
			assert.Equal(t, int64(4), purged[0].ContextMap()["purged"])
		})
	}
}

func TestGarbageCollector_CollectBoundsPurgeTime(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	gc := NewGarbageCollector(purgerFunc(func(ctx context.Context, _ time.Duration) (int, error) {
		deadline, _ = ctx.Deadline()
		return 0, nil
	}), time.Minute, time.Hour, nil)

	require.NoError(t, gc.collect(context.Background()))
	assert.False(t, deadline.IsZero(), "purge must run under a deadline")
}

func TestGarbageCollector_StartRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 8)
	gc := NewGarbageCollector(purgerFunc(func(context.Context, time.Duration) (int, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return 0, nil
	}), 5*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gc.Start(ctx) }()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("collector never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop after cancel")
	}
}
