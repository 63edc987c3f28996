package plagiarism

import (
	"strings"
	"testing"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffAlignsLines(t *testing.T) {
	p := Diff("a\nb\nc\n", "a\nx\nc\n")

	require.Len(t, p.Lines, 3)
	assert.Equal(t, models.DiffLine{Op: models.DiffEqual, LeftNo: 1, Left: "a", RightNo: 1, Right: "a"}, p.Lines[0])
	assert.Equal(t, models.DiffLine{Op: models.DiffReplace, LeftNo: 2, Left: "b", RightNo: 2, Right: "x"}, p.Lines[1])
	assert.Equal(t, models.DiffLine{Op: models.DiffEqual, LeftNo: 3, Left: "c", RightNo: 3, Right: "c"}, p.Lines[2])
}

func TestDiffInsertAndDelete(t *testing.T) {
	p := Diff("a\nb", "a\nb\nc")
	require.Len(t, p.Lines, 3)
	assert.Equal(t, models.DiffInsert, p.Lines[2].Op)
	assert.Equal(t, 3, p.Lines[2].RightNo)
	assert.Zero(t, p.Lines[2].LeftNo)

	p = Diff("a\nb\nc", "a\nc")
	require.Len(t, p.Lines, 3)
	assert.Equal(t, models.DiffDelete, p.Lines[1].Op)
	assert.Equal(t, "b", p.Lines[1].Left)
	assert.Zero(t, p.Lines[1].RightNo)
}

func TestDiffUnevenReplace(t *testing.T) {
	p := Diff("keep\none\ntwo\nthree\nend", "keep\nuno\nend")

	var ops []models.DiffOp
	for _, l := range p.Lines {
		ops = append(ops, l.Op)
	}
	assert.Equal(t, []models.DiffOp{
		models.DiffEqual,
		models.DiffReplace,
		models.DiffDelete,
		models.DiffDelete,
		models.DiffEqual,
	}, ops)
}

func TestDiffEmptySides(t *testing.T) {
	assert.Empty(t, Diff("", "").Lines)

	p := Diff("", "x\ny")
	require.Len(t, p.Lines, 2)
	for _, l := range p.Lines {
		assert.Equal(t, models.DiffInsert, l.Op)
	}
}

func TestDiffSidesRebuildsInputs(t *testing.T) {
	a := "int main() {\n  int x = 1;\n  return x;\n}\n"
	b := "int main() {\n  int y = 2;\n  int z = 3;\n  return y;\n}\n"

	left, right := DiffSides(Diff(a, b))
	assert.Equal(t, strings.TrimSuffix(a, "\n"), strings.Join(left, "\n"))
	assert.Equal(t, strings.TrimSuffix(b, "\n"), strings.Join(right, "\n"))
}
