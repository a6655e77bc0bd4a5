package report

import (
	"fmt"

	"fortio.org/safecast"
)

// BugTypeID identifies a registered class of rule violation.
type BugTypeID uint32

// NoBugTypeID marks an unregistered bug type.
const NoBugTypeID BugTypeID = 0

// BugType names a class of rule violation.
type BugType struct {
	ID       BugTypeID
	Name     string
	Category string
}

type bugTypeKey struct {
	name, category string
}

// Registry interns bug types by name and category. It is session-scoped:
// construct one per analysis run and pass it by reference.
type Registry struct {
	types []BugType
	index map[bugTypeKey]BugTypeID
}

// NewRegistry constructs an empty registry. ID 0 is reserved for
// unregistered types.
func NewRegistry() *Registry {
	r := &Registry{index: make(map[bugTypeKey]BugTypeID, 16)}
	r.types = append(r.types, BugType{Name: "unknown", Category: "unknown"})
	return r
}

// Register interns a bug type, returning the existing ID when the same
// name and category were registered before.
func (r *Registry) Register(name, category string) BugTypeID {
	key := bugTypeKey{name: name, category: category}
	if id, ok := r.index[key]; ok {
		return id
	}
	lenTypes, err := safecast.Conv[uint32](len(r.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := BugTypeID(lenTypes)
	r.types = append(r.types, BugType{ID: id, Name: name, Category: category})
	r.index[key] = id
	return id
}

// Lookup resolves an ID. Unknown IDs resolve to the reserved placeholder
// so degraded reports still render.
func (r *Registry) Lookup(id BugTypeID) BugType {
	if int(id) >= len(r.types) {
		return r.types[0]
	}
	return r.types[id]
}

// Len returns the number of registered types, placeholder included.
func (r *Registry) Len() int { return len(r.types) }
