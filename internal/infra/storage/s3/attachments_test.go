package s3

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)

	key, err := ObjectKey("alice", "png", at)
	req.NoError(err)
	req.True(strings.HasPrefix(key, "attachments/alice/2026/03/09/"))
	req.True(strings.HasSuffix(key, ".png"))

	other, err := ObjectKey("alice", ".png", at)
	req.NoError(err)
	req.NotEqual(key, other)

	_, err = ObjectKey("../bob", ".png", at)
	req.Error(err)
	_, err = ObjectKey(" ", ".png", at)
	req.Error(err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Options{Bucket: "b"}, nil)
	require.Error(t, err)
	_, err = NewClient(Options{Endpoint: "http://localhost:9000"}, nil)
	require.Error(t, err)

	c, err := NewClient(Options{Endpoint: "http://localhost:9000", Bucket: "chat"}, nil)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000/chat/attachments/a.png", c.objectURL("attachments/a.png"))
}

func TestNoopStore(t *testing.T) {
	_, err := NoopStore{}.Put(context.Background(), "alice", []byte("x"), "image/png", ".png")
	require.ErrorIs(t, err, ErrNotConfigured)
}
