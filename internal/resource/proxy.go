package resource

// Value is the discriminated result of dereferencing a relationship on a
// record: either a single related record or a collection, exposed uniformly
// so callers never branch on the relationship kind themselves.
type Value struct {
	one        Record
	many       []Record
	collection bool
}

// IsCollection reports whether the value is collection-valued
func (v Value) IsCollection() bool {
	return v.collection
}

// One returns the single related record, or nil for an unset to-one value.
// Calling One on a collection value returns nil.
func (v Value) One() Record {
	return v.one
}

// Many returns the related records. For a to-one value it returns a slice
// of zero or one records so callers can iterate uniformly.
func (v Value) Many() []Record {
	if v.collection {
		return v.many
	}
	if v.one == nil {
		return nil
	}
	return []Record{v.one}
}

// IsZero reports whether no related records are present
func (v Value) IsZero() bool {
	if v.collection {
		return len(v.many) == 0
	}
	return v.one == nil
}

// Proxy exposes typed access to one relationship: dereference, assignment,
// member removal, and inverse lookup. Pure metadata plus accessors; it
// carries no hook logic.
type Proxy struct {
	rel      *Relationship
	registry *Registry
}

// NewProxy builds a proxy for a relationship resolved against the registry
func NewProxy(rel *Relationship, registry *Registry) *Proxy {
	return &Proxy{rel: rel, registry: registry}
}

// Relationship returns the underlying relationship metadata
func (p *Proxy) Relationship() *Relationship {
	return p.rel
}

// Name returns the relationship name on the owning record
func (p *Proxy) Name() string {
	return p.rel.Name
}

// LeftType returns the owning resource type
func (p *Proxy) LeftType() string {
	return p.rel.LeftType
}

// RightType returns the related resource type
func (p *Proxy) RightType() string {
	return p.rel.RightType
}

// Inverse returns the proxy for the inverse relationship, if one is
// declared. The second return is false otherwise; that is an expected
// condition, not an error.
func (p *Proxy) Inverse() (*Proxy, bool) {
	inv, ok := p.registry.Inverse(p.rel)
	if !ok {
		return nil, false
	}
	return &Proxy{rel: inv, registry: p.registry}, true
}

// GetValue dereferences the relationship on the owning record. Unset or
// mistyped values yield a zero Value of the right shape.
func (p *Proxy) GetValue(owner Record) Value {
	raw, ok := owner[p.rel.Name]
	if p.rel.Type.ToMany() {
		v := Value{collection: true}
		if !ok || raw == nil {
			return v
		}
		switch related := raw.(type) {
		case []Record:
			v.many = related
		case []any:
			for _, item := range related {
				if rec, ok := item.(Record); ok {
					v.many = append(v.many, rec)
				}
			}
		}
		return v
	}

	v := Value{}
	if !ok || raw == nil {
		return v
	}
	if rec, ok := raw.(Record); ok {
		v.one = rec
	}
	return v
}

// SetValue assigns the relationship on the owning record. A to-one
// relationship takes the first record; nil clears it.
func (p *Proxy) SetValue(owner Record, related []Record) {
	if p.rel.Type.ToMany() {
		owner[p.rel.Name] = related
		return
	}
	if len(related) == 0 {
		owner[p.rel.Name] = nil
		return
	}
	owner[p.rel.Name] = related[0]
}

// Remove detaches one related record from the owner by identity: to-one
// values become nil, collection values lose exactly the matching member.
func (p *Proxy) Remove(owner Record, member Record) {
	memberID := RecordID(member)

	if !p.rel.Type.ToMany() {
		current := p.GetValue(owner).One()
		if current != nil && RecordID(current) == memberID {
			owner[p.rel.Name] = nil
		}
		return
	}

	current := p.GetValue(owner).Many()
	kept := make([]Record, 0, len(current))
	for _, rec := range current {
		if RecordID(rec) != memberID {
			kept = append(kept, rec)
		}
	}
	owner[p.rel.Name] = kept
}

// Retain keeps only related records whose identity appears in keep,
// substituting the instance from keep so callers observe any mutation a
// hook performed on it.
func (p *Proxy) Retain(owner Record, keep map[string]Record) {
	if !p.rel.Type.ToMany() {
		current := p.GetValue(owner).One()
		if current == nil {
			return
		}
		if replacement, ok := keep[RecordID(current)]; ok {
			owner[p.rel.Name] = replacement
		} else {
			owner[p.rel.Name] = nil
		}
		return
	}

	current := p.GetValue(owner).Many()
	kept := make([]Record, 0, len(current))
	for _, rec := range current {
		if replacement, ok := keep[RecordID(rec)]; ok {
			kept = append(kept, replacement)
		}
	}
	owner[p.rel.Name] = kept
}
