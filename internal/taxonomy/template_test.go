package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFind_KnownIDReturnsMatchingTemplate(t *testing.T) {
	tmpl, ok := Find("tian-8x4")
	assert.True(t, ok)
	assert.Equal(t, GridTian, tmpl.GridType)
	assert.Equal(t, 8, tmpl.GridRows)
	assert.Equal(t, 4, tmpl.GridCols)
}

func TestFind_UnknownIDReturnsZeroValueAndFalse(t *testing.T) {
	tmpl, ok := Find("does-not-exist")
	assert.False(t, ok)
	assert.Equal(t, Template{}, tmpl)
}

func TestCatalog_EveryEntryHasUniqueID(t *testing.T) {
	seen := make(map[string]bool)
	for _, tmpl := range Catalog {
		assert.False(t, seen[tmpl.ID], "duplicate id %s", tmpl.ID)
		seen[tmpl.ID] = true
	}
}

func TestCatalog_HeaderRatioWithinDocumentedRange(t *testing.T) {
	for _, tmpl := range Catalog {
		assert.GreaterOrEqual(t, tmpl.HeaderRatio, 0.0)
		assert.LessOrEqual(t, tmpl.HeaderRatio, 0.3)
	}
}
