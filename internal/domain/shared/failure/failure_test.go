package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindSentinelsMatchByKind(t *testing.T) {
	req := require.New(t)
	errSelf := New(KindValidation, "messaging: cannot message yourself")

	req.ErrorIs(errSelf, ErrValidation)
	req.NotErrorIs(errSelf, ErrForbidden)
	req.ErrorIs(fmt.Errorf("send: %w", errSelf), errSelf)
	req.ErrorIs(fmt.Errorf("send: %w", errSelf), ErrValidation)
	req.NotErrorIs(New(KindValidation, "other"), errSelf)
}

func TestTransientKeepsCause(t *testing.T) {
	req := require.New(t)
	err := Transient("store unavailable", context.DeadlineExceeded)

	req.ErrorIs(err, ErrTransient)
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Equal("store unavailable: context deadline exceeded", err.Error())
}

func TestKindOf(t *testing.T) {
	req := require.New(t)
	req.Equal(KindNotFound, KindOf(fmt.Errorf("wrapped: %w", New(KindNotFound, "gone"))))
	req.Equal(Kind(""), KindOf(errors.New("plain")))
	req.Equal(Kind(""), KindOf(nil))
}
