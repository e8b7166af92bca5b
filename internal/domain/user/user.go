package user

import (
	"context"
	"strings"

	"marketchat/internal/domain/shared/failure"
)

var ErrNotFound = failure.New(failure.KindNotFound, "user: not found")

type ID string

// Profile is the public view of an account owned by the external account service.
type Profile struct {
	ID        ID
	FirstName string
	LastName  string
	AvatarURL string
}

func (p Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Directory answers account lookups. ByID returns ErrNotFound for unknown ids.
type Directory interface {
	ByID(ctx context.Context, id ID) (Profile, error)
}
