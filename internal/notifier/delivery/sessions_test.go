package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_ScopedByChatAndUser(t *testing.T) {
	reg := newSessionRegistry()
	a := sessionKey{ChatID: 1, UserID: 10}
	b := sessionKey{ChatID: 1, UserID: 20}

	reg.set(a, session{state: stateAddingEntry})
	assert.Equal(t, stateAddingEntry, reg.get(a).state)
	assert.Equal(t, stateIdle, reg.get(b).state)

	reg.set(b, session{state: stateConfirmRemove, removeIndex: 3})
	assert.Equal(t, 3, reg.get(b).removeIndex)

	reg.clear(a)
	assert.Equal(t, stateIdle, reg.get(a).state)
	assert.Equal(t, stateConfirmRemove, reg.get(b).state)
}
