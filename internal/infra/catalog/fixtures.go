package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadFixtures parses a JSON array of listing ids or of objects carrying an
// "id" field.
func ReadFixtures(r io.Reader) ([]string, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("catalog: decode fixtures: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for i, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err != nil {
			var obj struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return nil, fmt.Errorf("catalog: fixture %d: %w", i, err)
			}
			id = obj.ID
		}
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// LoadFixtures seeds set from the file at path.
func LoadFixtures(path string, set Set) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	ids, err := ReadFixtures(f)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		set.Add(id)
	}
	return len(ids), nil
}
