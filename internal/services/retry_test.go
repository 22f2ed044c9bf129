package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry_RecoversFromContention(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustedIsStoreBusy(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 2, func() error {
		calls++
		return errors.New("database is locked")
	})

	assert.ErrorIs(t, err, ErrStoreBusy)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_OtherErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("no such table: clients")
	calls := 0
	err := withRetry(context.Background(), 5, func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrStoreBusy)
	assert.Equal(t, 1, calls)
}
