package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyRecord_Replay(t *testing.T) {
	cases := []struct {
		status   IdempotencyStatus
		valid    bool
		finished bool
	}{
		{IdempotencyStatusProcessing, true, false},
		{IdempotencyStatusDone, true, true},
		{IdempotencyStatusFailed, true, true},
		{IdempotencyStatus("expired"), false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			rec := IdempotencyRecord{Status: tc.status}
			assert.Equal(t, tc.valid, tc.status.Valid())
			assert.Equal(t, tc.finished, rec.Finished())
		})
	}

	assert.Equal(t, 200, IdempotencyRecord{}.ReplayStatus())
	assert.Equal(t, 422, IdempotencyRecord{HTTPStatus: 422}.ReplayStatus())
}

func TestIsIdempotencyConflictWrapped(t *testing.T) {
	assert.True(t, IsIdempotencyConflict(fmt.Errorf("create: %w", ErrIdempotencyKeyAlreadyExists)))
	assert.True(t, IsIdempotencyConflict(ErrIdempotencyHashMismatch))
	assert.False(t, IsIdempotencyConflict(ErrIdempotencyKeyNotFound))
	assert.False(t, IsIdempotencyConflict(nil))
}
