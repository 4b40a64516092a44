package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBusy = errors.New("busy")

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	r := New(fastPolicy())
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errBusy)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_GivesUpAfterMaxAttempts(t *testing.T) {
	r := New(fastPolicy())
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Transient(errBusy)
	})

	assert.ErrorIs(t, err, errBusy)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestRetrier_DoesNotRetryUnclassifiedErrors(t *testing.T) {
	r := New(fastPolicy())
	calls := 0

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Classifier(t *testing.T) {
	p := fastPolicy()
	p.Classify = func(err error) bool { return errors.Is(err, errBusy) }

	var retried []int
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	}

	calls := 0
	err := New(p).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetrier_StopOverridesClassifier(t *testing.T) {
	p := fastPolicy()
	p.Classify = func(error) bool { return true }
	calls := 0

	err := New(p).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Stop(errBusy)
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(fastPolicy()).Do(ctx, func(ctx context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_FillsDefaults(t *testing.T) {
	p := New(Policy{}).Policy()
	d := DefaultPolicy()

	assert.Equal(t, d.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, d.BaseDelay, p.BaseDelay)
	assert.Equal(t, d.MaxDelay, p.MaxDelay)
	assert.Equal(t, d.Multiplier, p.Multiplier)
}
