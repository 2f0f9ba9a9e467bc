package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCatalog() *Catalog {
	return New([]Operation{
		{ID: "b.read", Kind: KindRead, Entity: "B"},
		{ID: "a.read", Kind: KindRead, Entity: "A"},
		{ID: "a.write", Kind: KindWrite, Entity: "A"},
	})
}

func TestCatalogAllIsSortedByID(t *testing.T) {
	c := sampleCatalog()
	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a.read", all[0].ID)
	assert.Equal(t, "a.write", all[1].ID)
	assert.Equal(t, "b.read", all[2].ID)
}

func TestCatalogFilterByKind(t *testing.T) {
	c := sampleCatalog()

	reads := c.Filter([]OperationKind{KindRead})
	require.Len(t, reads, 2)
	for _, op := range reads {
		assert.Equal(t, KindRead, op.Kind)
	}

	writes := c.Filter([]OperationKind{KindWrite})
	require.Len(t, writes, 1)
	assert.Equal(t, "a.write", writes[0].ID)
}

func TestCatalogFilterEmptyReturnsAll(t *testing.T) {
	c := sampleCatalog()
	assert.Len(t, c.Filter(nil), 3)
}

func TestCatalogSelectPreservesOrderAndSkipsUnknown(t *testing.T) {
	c := sampleCatalog()
	selected := c.Select([]string{"b.read", "bogus.id", "a.read"})
	require.Len(t, selected, 2)
	assert.Equal(t, "b.read", selected[0].ID)
	assert.Equal(t, "a.read", selected[1].ID)
}

func TestCatalogGet(t *testing.T) {
	c := sampleCatalog()

	op, ok := c.Get("a.write")
	require.True(t, ok)
	assert.Equal(t, KindWrite, op.Kind)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestBuiltinCatalogHasNoWriteOperationsExposedByDefault(t *testing.T) {
	c := Builtin()
	reads := c.Filter([]OperationKind{KindRead})
	all := c.All()
	assert.Less(t, len(reads), len(all))
	assert.Greater(t, len(reads), 0)
	for _, op := range reads {
		assert.Equal(t, KindRead, op.Kind)
	}
}
