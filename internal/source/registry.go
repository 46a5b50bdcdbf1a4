package source

import (
	"fmt"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
)

// Registry holds the available connectors keyed by source tag.
type Registry struct {
	connectors map[domain.SourceTag]Connector
}

// NewRegistry builds a registry from the given connectors. Registering two
// connectors for the same tag is a wiring mistake and returns an error.
func NewRegistry(connectors ...Connector) (*Registry, error) {
	r := &Registry{connectors: make(map[domain.SourceTag]Connector, len(connectors))}
	for _, c := range connectors {
		if c == nil {
			continue
		}
		tag := c.Tag()
		if _, dup := r.connectors[tag]; dup {
			return nil, fmt.Errorf("duplicate connector for tag %q", tag)
		}
		r.connectors[tag] = c
	}
	return r, nil
}

// Get returns the connector registered for tag, if any.
func (r *Registry) Get(tag domain.SourceTag) (Connector, bool) {
	c, ok := r.connectors[tag]
	return c, ok
}

// Tags returns the registered tags in the stable platform order.
func (r *Registry) Tags() []domain.SourceTag {
	tags := make([]domain.SourceTag, 0, len(r.connectors))
	for _, tag := range domain.AllSourceTags() {
		if _, ok := r.connectors[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Handle derives a deterministic platform handle from a display name:
// lowercased, with runs of non-alphanumeric characters collapsed into the
// separator. Returns "" for names with no usable characters.
func Handle(name, sep string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteString(sep)
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}
