package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"marketchat/internal/app/services/auth"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/security"
	"marketchat/internal/infra/storage/memory"
)

func TestResolveToken(t *testing.T) {
	req := require.New(t)
	secret := []byte("s3cret")
	svc := &auth.Service{
		Tokens: security.JWTVerifier{Secret: secret},
		Users:  memory.NewUserDirectory(domainuser.Profile{ID: "alice", FirstName: "Alice"}),
	}
	issuer := security.JWTIssuer{Secret: secret}

	token, err := issuer.Issue("alice")
	req.NoError(err)
	principal, err := svc.ResolveToken(context.Background(), token)
	req.NoError(err)
	req.Equal("alice", principal.UserID)
	req.Equal("Alice", principal.Profile.FirstName)

	_, err = svc.ResolveToken(context.Background(), "  ")
	req.ErrorIs(err, auth.ErrTokenRequired)

	_, err = svc.ResolveToken(context.Background(), "garbage")
	req.ErrorIs(err, auth.ErrUnauthorized)

	ghost, err := issuer.Issue("ghost")
	req.NoError(err)
	_, err = svc.ResolveToken(context.Background(), ghost)
	req.ErrorIs(err, auth.ErrUnauthorized)
}
