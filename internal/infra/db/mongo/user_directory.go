package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "marketchat/internal/domain/user"
)

// UserDirectory reads the profile projection the account service keeps in the
// shared database. It never writes.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection(usersCollection)}
}

var _ domainuser.Directory = (*UserDirectory)(nil)

func (d *UserDirectory) ByID(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	var doc profileDocument
	opts := options.FindOne().SetProjection(bson.M{"first_name": 1, "last_name": 1, "avatar_url": 1})
	if err := d.col.FindOne(ctx, bson.M{"_id": string(id)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainuser.Profile{}, domainuser.ErrNotFound
		}
		return domainuser.Profile{}, err
	}
	return domainuser.Profile{
		ID:        domainuser.ID(doc.ID),
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		AvatarURL: doc.AvatarURL,
	}, nil
}

type profileDocument struct {
	ID        string `bson:"_id"`
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
	AvatarURL string `bson:"avatar_url"`
}
