package enrollment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrNotFound("x"), KindNotFound},
		{ErrConflict("x"), KindConflict},
		{ErrCapacityExceeded("x"), KindCapacityExceeded},
		{ErrValidation("x"), KindValidation},
		{fmt.Errorf("wrapped: %w", ErrConflict("x")), KindConflict},
		{errors.New("disk"), KindUnexpected},
		{context.DeadlineExceeded, KindUnexpected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), tt.err.Error())
	}
}

func TestUnexpected(t *testing.T) {
	assert.NoError(t, unexpected("op", nil))

	rejection := ErrNotFound("missing")
	assert.Same(t, rejection, unexpected("op", rejection))

	err := unexpected("enroll student", context.Canceled)
	var ue *UnexpectedError
	assert.ErrorAs(t, err, &ue)
	assert.Equal(t, "enroll student", ue.Op)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "enroll student: context canceled", err.Error())

	// Already wrapped errors keep their first operation.
	assert.Same(t, err, unexpected("outer", err))
	assert.False(t, IsRejection(err))
	assert.True(t, IsRejection(rejection))
	assert.False(t, IsRejection(nil))
}

func TestBatchResultFail(t *testing.T) {
	r := newBatchResult(7)
	r.fail("alice", ErrConflict("student is already enrolled in this group"))
	r.fail("bob", errors.New("pq: connection refused"))

	assert.Equal(t, []ItemError{
		{Identifier: "alice", Kind: KindConflict, Reason: "student is already enrolled in this group"},
		{Identifier: "bob", Kind: KindUnexpected, Reason: "enrollment failed"},
	}, r.Errors)
	assert.Empty(t, r.Successful)
	assert.NotNil(t, r.Successful)
}

func TestSanitizeUsernames(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SanitizeUsernames([]string{" a", "b ", "", "a", "  ", "c", "b"}))
	assert.Empty(t, SanitizeUsernames(nil))
}

func TestPageRequestNormalize(t *testing.T) {
	p := PageRequest{Page: 0, Limit: 0, Search: "  math "}.normalize()
	assert.Equal(t, PageRequest{Page: 1, Limit: 10, Search: "math"}, p)
	assert.Equal(t, 0, p.offset())

	p = PageRequest{Page: 3, Limit: 500}.normalize()
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 200, p.offset())
}
