package cities

import (
	"context"
	"strings"
)

// MemoryStore scans an in-memory slice. It is the default Store.
type MemoryStore struct {
	list  []City
	lower []string
}

// NewMemoryStore returns a store over list. The slice is not copied.
func NewMemoryStore(list []City) *MemoryStore {
	lower := make([]string, len(list))
	for i, c := range list {
		lower[i] = strings.ToLower(c.Name)
	}
	return &MemoryStore{list: list, lower: lower}
}

func (s *MemoryStore) Match(_ context.Context, query string, limit int) ([]City, error) {
	q := strings.ToLower(query)
	if q == "" || limit <= 0 {
		return []City{}, nil
	}

	var prefix, substr []City
	for i, name := range s.lower {
		switch {
		case strings.HasPrefix(name, q):
			prefix = append(prefix, s.list[i])
		case strings.Contains(name, q):
			substr = append(substr, s.list[i])
		}
		if len(prefix) >= limit {
			break
		}
	}

	out := append(prefix, substr...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []City{}
	}
	return out, nil
}

func (s *MemoryStore) All(_ context.Context) ([]City, error) {
	out := make([]City, len(s.list))
	copy(out, s.list)
	return out, nil
}
