package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.FailedPrecondition, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			err := WrapError("inventory.apply", status.Error(tc.code, "boom"))
			var repoErr *Error
			if assert.ErrorAs(t, err, &repoErr) {
				assert.Equal(t, tc.notFound, repoErr.IsNotFound())
				assert.Equal(t, tc.conflict, repoErr.IsConflict())
				assert.Equal(t, tc.unavailable, repoErr.IsUnavailable())
				assert.Contains(t, repoErr.Error(), "inventory.apply")
			}
		})
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
	assert.Equal(t, context.Canceled, WrapError("op", status.Error(codes.Canceled, "gone")))
	assert.Equal(t, context.DeadlineExceeded, WrapError("op", status.Error(codes.DeadlineExceeded, "slow")))

	wrapped := fmt.Errorf("read: %w", context.Canceled)
	assert.ErrorIs(t, WrapError("op", wrapped), context.Canceled)
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := WrapError("", status.Error(codes.NotFound, "missing"))
	outer := WrapError("orders.get", fmt.Errorf("lookup: %w", inner))

	assert.True(t, IsNotFound(outer))
	assert.Contains(t, outer.Error(), "orders.get")
	assert.False(t, IsNotFound(errors.New("plain")))
}
