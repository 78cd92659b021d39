package reload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemappingTable(t *testing.T) {
	table := NewRemappingTable()
	table.AddClass(8, 12)
	table.AddClass(9, 13)
	table.AddLibrary(1, 2)

	assert.Equal(t, []Remapping{{OldID: 8, NewID: 12}, {OldID: 9, NewID: 13}}, table.Classes())
	assert.Equal(t, []Remapping{{OldID: 1, NewID: 2}}, table.Libraries())

	old, ok := table.FindOriginalClass(13)
	assert.True(t, ok)
	assert.Equal(t, 9, old)

	next, ok := table.FindReplacementClass(8)
	assert.True(t, ok)
	assert.Equal(t, 12, next)

	_, ok = table.FindOriginalClass(8)
	assert.False(t, ok, "lookups are directional")

	table.Reset()
	assert.Empty(t, table.Classes())
	assert.Empty(t, table.Libraries())
	_, ok = table.FindReplacementClass(8)
	assert.False(t, ok)
}
