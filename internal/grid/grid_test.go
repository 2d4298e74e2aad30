package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placement struct {
	name string
	row  int
	col  int
	at   time.Time
}

func (p placement) Cell() (int, int)    { return p.row, p.col }
func (p placement) PlacedAt() time.Time { return p.at }

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func at(row, col int, name string, offset time.Duration) placement {
	return placement{name: name, row: row, col: col, at: base.Add(offset)}
}

func names(bucket []placement) []string {
	out := make([]string, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p.name)
	}
	return out
}

func TestBuild_Empty(t *testing.T) {
	m := BuildDefault[placement](nil)
	assert.Equal(t, 0, m.Rows())
	assert.Equal(t, 0, m.Cols())
	assert.False(t, HasAnyItems(m))
}

func TestBuild_CornersSpanFullRange(t *testing.T) {
	m := BuildDefault([]placement{at(1, 1, "go", 0), at(10, 5, "sql", 0)})

	require.Equal(t, 10, m.Rows())
	require.Equal(t, 5, m.Cols())
	assert.Equal(t, []string{"go"}, names(m[0][0]))
	assert.Equal(t, []string{"sql"}, names(m[9][4]))
	assert.True(t, HasAnyItems(m))
}

func TestBuild_KeepsLeadingAndInteriorEmptiness(t *testing.T) {
	m := BuildDefault([]placement{at(3, 2, "a", 0), at(3, 4, "b", 0)})

	require.Equal(t, 3, m.Rows())
	require.Equal(t, 4, m.Cols())
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			switch {
			case i == 2 && j == 1:
				assert.Equal(t, []string{"a"}, names(m[i][j]))
			case i == 2 && j == 3:
				assert.Equal(t, []string{"b"}, names(m[i][j]))
			default:
				assert.Empty(t, m[i][j], "cell %d,%d", i, j)
			}
		}
	}
}

func TestBuild_SingleItemAtMaxCorner(t *testing.T) {
	m := BuildDefault([]placement{at(10, 5, "only", 0)})

	require.Equal(t, 10, m.Rows())
	require.Equal(t, 5, m.Cols())
	assert.Equal(t, []string{"only"}, names(m[9][4]))
	assert.Empty(t, m[0][0])
}

func TestBuild_SharedCellOrderedByUpdateTime(t *testing.T) {
	items := []placement{
		at(2, 2, "late", 2*time.Minute),
		at(2, 2, "early", 0),
		at(2, 2, "middle", time.Minute),
	}
	m := BuildDefault(items)

	require.Equal(t, 2, m.Rows())
	require.Equal(t, 2, m.Cols())
	assert.Equal(t, []string{"early", "middle", "late"}, names(m[1][1]))
}

func TestBuild_DropsOutOfRange(t *testing.T) {
	items := []placement{
		at(0, 1, "zero-row", 0),
		at(11, 1, "too-low", 0),
		at(1, 6, "too-right", 0),
		at(-3, -3, "negative", 0),
	}
	m := BuildDefault(items)
	assert.Equal(t, 0, m.Rows())
	assert.False(t, HasAnyItems(m))

	m = BuildDefault(append(items, at(2, 3, "kept", 0)))
	require.Equal(t, 2, m.Rows())
	require.Equal(t, 3, m.Cols())
	assert.Equal(t, []string{"kept"}, names(m[1][2]))
}

func TestBuild_CustomBounds(t *testing.T) {
	m := Build([]placement{at(2, 2, "x", 0), at(4, 1, "outside", 0)}, 3, 3)
	require.Equal(t, 2, m.Rows())
	require.Equal(t, 2, m.Cols())

	assert.Equal(t, 0, Build([]placement{at(1, 1, "x", 0)}, 0, 5).Rows())
}

func TestBuild_ShapeMatchesMaxCoordinates(t *testing.T) {
	cases := [][]placement{
		{at(1, 1, "a", 0)},
		{at(4, 2, "a", 0), at(2, 5, "b", 0)},
		{at(7, 3, "a", 0), at(7, 3, "b", time.Second), at(1, 1, "c", 0)},
		{at(10, 1, "a", 0), at(1, 5, "b", 0)},
	}
	for _, items := range cases {
		maxRow, maxCol := 0, 0
		for _, p := range items {
			maxRow = max(maxRow, p.row)
			maxCol = max(maxCol, p.col)
		}
		m := BuildDefault(items)
		assert.Equal(t, maxRow, m.Rows())
		assert.Equal(t, maxCol, m.Cols())
		assert.True(t, HasAnyItems(m))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	items := []placement{
		at(3, 1, "c", 0),
		at(1, 2, "a", time.Second),
		at(1, 2, "b", 2*time.Second),
		at(5, 5, "d", 0),
	}
	first := BuildDefault(items)
	second := BuildDefault(items)
	assert.Equal(t, first, second)

	reversed := []placement{items[3], items[2], items[1], items[0]}
	assert.Equal(t, first, BuildDefault(reversed))
}

func TestBuild_DoesNotReorderInput(t *testing.T) {
	items := []placement{at(2, 1, "b", 0), at(1, 1, "a", 0)}
	_ = BuildDefault(items)
	assert.Equal(t, "b", items[0].name)
}

func TestHasAnyItems_ShapedButEmpty(t *testing.T) {
	m := Matrix[placement]{{nil, nil}, {nil, {}}}
	assert.Equal(t, 2, m.Rows())
	assert.False(t, HasAnyItems(m))
}

func TestMap_KeepsShape(t *testing.T) {
	m := BuildDefault([]placement{at(1, 1, "a", 0), at(2, 3, "b", 0), at(2, 3, "c", time.Second)})
	out := Map(m, func(p placement) string { return p.name })
	require.Equal(t, 2, out.Rows())
	require.Equal(t, 3, out.Cols())
	assert.Equal(t, []string{"a"}, out[0][0])
	assert.Empty(t, out[1][1])
	assert.Equal(t, []string{"b", "c"}, out[1][2])
}
