package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// isolateRegistry swaps in an empty registry for the duration of a test so
// schemas registered by other packages survive.
func isolateRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = make(map[Kind]Schema)
	registryMu.Unlock()

	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

func TestRegistry_RegisterLookup(t *testing.T) {
	isolateRegistry(t)

	Register(testSchema())
	schema, ok := Lookup("contact")
	assert.True(t, ok)
	assert.Equal(t, "Contacts", schema.Label)
	assert.Equal(t, 1, SchemaCount())
	assert.Equal(t, []Kind{"contact"}, Kinds())

	_, ok = Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	isolateRegistry(t)

	Register(testSchema())
	assert.Panics(t, func() { Register(testSchema()) })
}

func TestRegistry_UndeclaredKeyFieldPanics(t *testing.T) {
	isolateRegistry(t)

	schema := testSchema()
	schema.KeyFields = []Field{IDNumber}
	assert.Panics(t, func() { Register(schema) })
}

func TestRegistry_DefaultLabelAndClear(t *testing.T) {
	isolateRegistry(t)

	schema := testSchema()
	schema.Label = ""
	Register(schema)
	got, _ := Lookup("contact")
	assert.Equal(t, "contact", got.Label)

	Clear()
	assert.Equal(t, 0, SchemaCount())
}
