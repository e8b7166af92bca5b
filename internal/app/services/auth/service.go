package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	domainuser "marketchat/internal/domain/user"
)

var (
	ErrTokenRequired = errors.New("auth: token required")
	ErrUnauthorized  = errors.New("auth: invalid credentials")
)

// TokenVerifier checks a bearer credential and returns the account id it names.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type Service struct {
	Tokens TokenVerifier
	Users  domainuser.Directory
	Logger *slog.Logger
}

// Principal is the authenticated caller of a request or realtime connection.
type Principal struct {
	UserID  string
	Profile domainuser.Profile
}

// ResolveToken turns a bearer credential into a principal. Tokens naming an
// account the directory does not know are rejected.
func (s *Service) ResolveToken(ctx context.Context, token string) (*Principal, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}
	userID, err := s.Tokens.Verify(token)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Debug("token rejected", "error", err)
		}
		return nil, ErrUnauthorized
	}
	profile, err := s.Users.ByID(ctx, domainuser.ID(userID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &Principal{UserID: userID, Profile: profile}, nil
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Tokens == nil:
		return errors.New("auth: token verifier required")
	case s.Users == nil:
		return errors.New("auth: user directory required")
	default:
		return nil
	}
}
