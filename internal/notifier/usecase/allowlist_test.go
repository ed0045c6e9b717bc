package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcher_ExactEntry(t *testing.T) {
	m := NewMatcher(staticAllowList{"alice@example.com"})

	assert.True(t, m.Permits("alice@example.com"))
	assert.False(t, m.Permits("bob@example.com"))
	assert.False(t, m.Permits("alice@example.org"))
}

func TestMatcher_WildcardDomain(t *testing.T) {
	m := NewMatcher(staticAllowList{"*@example.com"})

	assert.True(t, m.Permits("alice@example.com"))
	assert.True(t, m.Permits("bob@example.com"))
	assert.False(t, m.Permits("alice@example.org"))
}

func TestMatcher_NoSubdomainCascade(t *testing.T) {
	m := NewMatcher(staticAllowList{"*@example.com"})

	assert.False(t, m.Permits("alice@mail.example.com"))
}

func TestMatcher_CaseSensitive(t *testing.T) {
	m := NewMatcher(staticAllowList{"Alice@Example.com", "*@Corp.com"})

	assert.True(t, m.Permits("Alice@Example.com"))
	assert.False(t, m.Permits("alice@example.com"))
	assert.True(t, m.Permits("x@Corp.com"))
	assert.False(t, m.Permits("x@corp.com"))
}

func TestMatcher_EmptyList(t *testing.T) {
	m := NewMatcher(staticAllowList{})

	assert.False(t, m.Permits("anyone@anywhere.com"))
}

func TestMatcher_AddressWithoutAt(t *testing.T) {
	m := NewMatcher(staticAllowList{"*@example.com", "plainstring"})

	assert.False(t, m.Permits("example.com"))
	assert.True(t, m.Permits("plainstring"))
}
