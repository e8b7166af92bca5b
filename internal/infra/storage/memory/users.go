package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	domainuser "marketchat/internal/domain/user"
)

// UserDirectory stores profiles in memory. Not suitable for production.
type UserDirectory struct {
	mu   sync.RWMutex
	byID map[domainuser.ID]domainuser.Profile
}

func NewUserDirectory(profiles ...domainuser.Profile) *UserDirectory {
	d := &UserDirectory{byID: make(map[domainuser.ID]domainuser.Profile)}
	for _, p := range profiles {
		d.Put(p)
	}
	return d
}

func (d *UserDirectory) ByID(ctx context.Context, id domainuser.ID) (domainuser.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.byID[id]; ok {
		return p, nil
	}
	return domainuser.Profile{}, domainuser.ErrNotFound
}

func (d *UserDirectory) Put(p domainuser.Profile) {
	id := domainuser.ID(strings.TrimSpace(string(p.ID)))
	if id == "" {
		return
	}
	p.ID = id
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[id] = p
}

var _ domainuser.Directory = (*UserDirectory)(nil)

type profileFixture struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url"`
}

// ReadProfiles loads a JSON array of profiles into the directory and returns
// how many were added.
func (d *UserDirectory) ReadProfiles(r io.Reader) (int, error) {
	var items []profileFixture
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("memory: decode profiles: %w", err)
	}
	n := 0
	for _, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		d.Put(domainuser.Profile{
			ID:        domainuser.ID(item.ID),
			FirstName: item.FirstName,
			LastName:  item.LastName,
			AvatarURL: item.AvatarURL,
		})
		n++
	}
	return n, nil
}
