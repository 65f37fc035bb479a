package feature

import (
	"testing"

	"github.com/rushteam/questkit/core"
)

func TestBuildSchemaColumnLayout(t *testing.T) {
	dim := 16
	schema := BuildSchema(dim)

	wantLen := len(NumericColumns) + 2*(len(core.KnownCategories)-1) + dim
	if schema.Len() != wantLen {
		t.Fatalf("schema length = %d, want %d", schema.Len(), wantLen)
	}

	// 数值列在前，顺序固定
	for i, col := range NumericColumns {
		if schema.Columns[i] != col {
			t.Errorf("column[%d] = %q, want %q", i, schema.Columns[i], col)
		}
	}

	// 参照水平 "none" 不出现在任何 One-Hot 列里
	for _, col := range schema.Columns {
		if col == "category_none" || col == "preferred_category_none" {
			t.Errorf("reference level leaked into schema: %q", col)
		}
	}

	if got := schema.EmbeddingDimension(); got != dim {
		t.Errorf("EmbeddingDimension() = %d, want %d", got, dim)
	}
}

func TestReindexFillAndDrop(t *testing.T) {
	schema := NewSchema([]string{"a", "b", "c"})

	row := schema.Reindex(map[string]float64{
		"a":          1.0,
		"c":          3.0,
		"unexpected": 9.0, // 多余列必须被丢弃
	})

	want := []float64{1.0, 0.0, 3.0}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("row[%d] = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestSchemaEqual(t *testing.T) {
	a := NewSchema([]string{"x", "y"})
	b := NewSchema([]string{"x", "y"})
	c := NewSchema([]string{"y", "x"})

	if !a.Equal(b) {
		t.Error("identical schemas should be equal")
	}
	if a.Equal(c) {
		t.Error("reordered schemas must not be equal")
	}
	if a.Equal(nil) {
		t.Error("nil schema must not be equal")
	}
}
