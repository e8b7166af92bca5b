package scylla

import (
	"context"
	"errors"

	"github.com/gocql/gocql"

	domainuser "marketchat/internal/domain/user"
)

// UserDirectory reads profiles the account service replicates into the keyspace.
type UserDirectory struct {
	session *gocql.Session
}

func NewUserDirectory(session *gocql.Session) *UserDirectory {
	return &UserDirectory{session: session}
}

var _ domainuser.Directory = (*UserDirectory)(nil)

func (d *UserDirectory) ByID(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	if d.session == nil {
		return domainuser.Profile{}, errSessionNotInitialized
	}
	profile := domainuser.Profile{ID: id}
	err := d.session.Query(`SELECT first_name, last_name, avatar_url FROM user_profiles WHERE id = ?`, string(id)).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&profile.FirstName, &profile.LastName, &profile.AvatarURL)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return domainuser.Profile{}, domainuser.ErrNotFound
		}
		return domainuser.Profile{}, err
	}
	return profile, nil
}
