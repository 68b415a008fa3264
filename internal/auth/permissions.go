package auth

import (
	"encoding/json"
	"sort"
	"strings"
)

// Wildcard is the reserved permission id granting unrestricted access.
const Wildcard = "all"

// PermissionSet is either the wildcard or a set of catalog ids. The wildcard
// absorbs everything: adding "all" to any set yields the wildcard.
// The zero value is the empty set.
type PermissionSet struct {
	all bool
	ids map[string]struct{}
}

// AllPermissions returns the wildcard set.
func AllPermissions() PermissionSet {
	return PermissionSet{all: true}
}

// NewPermissionSet builds a normalized set. Blank ids are skipped and the
// presence of "all" collapses the set to the wildcard.
func NewPermissionSet(ids ...string) PermissionSet {
	var set PermissionSet
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if id == Wildcard {
			return AllPermissions()
		}
		if set.ids == nil {
			set.ids = make(map[string]struct{}, len(ids))
		}
		set.ids[id] = struct{}{}
	}
	return set
}

func (p PermissionSet) IsAll() bool { return p.all }

// Contains reports exact membership; the wildcard contains every id.
func (p PermissionSet) Contains(id string) bool {
	if p.all {
		return true
	}
	_, ok := p.ids[id]
	return ok
}

func (p PermissionSet) Empty() bool { return !p.all && len(p.ids) == 0 }

// Len returns the number of explicit ids; the wildcard counts as one.
func (p PermissionSet) Len() int {
	if p.all {
		return 1
	}
	return len(p.ids)
}

// IDs returns the sorted ids, or ["all"] for the wildcard. Never nil.
func (p PermissionSet) IDs() []string {
	if p.all {
		return []string{Wildcard}
	}
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (p PermissionSet) Clone() PermissionSet {
	if p.all {
		return AllPermissions()
	}
	return NewPermissionSet(p.IDs()...)
}

func (p PermissionSet) Equal(o PermissionSet) bool {
	if p.all || o.all {
		return p.all == o.all
	}
	if len(p.ids) != len(o.ids) {
		return false
	}
	for id := range p.ids {
		if _, ok := o.ids[id]; !ok {
			return false
		}
	}
	return true
}

func (p PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.IDs())
}

func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*p = NewPermissionSet(ids...)
	return nil
}
