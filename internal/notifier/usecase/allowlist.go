package usecase

import "strings"

// AllowList provides the current allow-list entries in insertion order.
type AllowList interface {
	Entries() []string
}

// Matcher decides whether a sender address is permitted to generate a
// notification. An address is permitted if it exactly matches an entry, or
// if its domain (the part after the first "@") matches a *@domain entry.
//
// Matching is case-sensitive as stored: entries and observed addresses are
// compared byte-for-byte, with no normalization. Permitting a domain does
// not permit its sub-domains.
type Matcher struct {
	list AllowList
}

// NewMatcher creates a Matcher over the given allow-list.
func NewMatcher(list AllowList) *Matcher {
	return &Matcher{list: list}
}

// Permits reports whether address may generate a notification.
func (m *Matcher) Permits(address string) bool {
	_, domain, found := strings.Cut(address, "@")
	for _, entry := range m.list.Entries() {
		if wild, ok := strings.CutPrefix(entry, "*@"); ok {
			if found && domain == wild {
				return true
			}
			continue
		}
		if entry == address {
			return true
		}
	}
	return false
}
