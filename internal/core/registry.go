package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[Kind]Schema)
	registryMu sync.RWMutex
)

// Register adds a schema to the registry.
// Panics if a schema with the same kind is already registered or if a key
// field is not declared.
func Register(schema Schema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.Kind]; exists {
		panic(fmt.Sprintf("schema already registered: %s", schema.Kind))
	}
	for _, f := range schema.KeyFields {
		if _, ok := schema.Spec(f); !ok {
			panic(fmt.Sprintf("schema %s: key field %s is not declared", schema.Kind, f))
		}
	}
	if schema.Label == "" {
		schema.Label = string(schema.Kind)
	}

	registry[schema.Kind] = schema
}

// Lookup returns the schema for kind.
func Lookup(kind Kind) (Schema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schema, ok := registry[kind]
	return schema, ok
}

// Kinds returns every registered kind, sorted.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// SchemaCount returns the number of registered schemas.
func SchemaCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[Kind]Schema)
}
