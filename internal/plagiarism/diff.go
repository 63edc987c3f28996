package plagiarism

import (
	"strings"

	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/pmezard/go-difflib/difflib"
)

// Diff aligns the lines of a against the lines of b. Every line of both
// texts appears exactly once, in original order, with its 1-based number.
func Diff(a, b string) models.DiffPayload {
	left := splitLines(normalizeNewlines(a))
	right := splitLines(normalizeNewlines(b))

	m := difflib.NewMatcherWithJunk(left, right, false, nil)
	lines := make([]models.DiffLine, 0, max(len(left), len(right)))

	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for k := 0; k < op.I2-op.I1; k++ {
				lines = append(lines, models.DiffLine{
					Op:      models.DiffEqual,
					LeftNo:  op.I1 + k + 1,
					Left:    left[op.I1+k],
					RightNo: op.J1 + k + 1,
					Right:   right[op.J1+k],
				})
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				lines = append(lines, deleteLine(left, i))
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				lines = append(lines, insertLine(right, j))
			}
		case 'r':
			n := max(op.I2-op.I1, op.J2-op.J1)
			for k := 0; k < n; k++ {
				i, j := op.I1+k, op.J1+k
				switch {
				case i < op.I2 && j < op.J2:
					lines = append(lines, models.DiffLine{
						Op:      models.DiffReplace,
						LeftNo:  i + 1,
						Left:    left[i],
						RightNo: j + 1,
						Right:   right[j],
					})
				case i < op.I2:
					lines = append(lines, deleteLine(left, i))
				default:
					lines = append(lines, insertLine(right, j))
				}
			}
		}
	}

	return models.DiffPayload{Lines: lines}
}

func deleteLine(left []string, i int) models.DiffLine {
	return models.DiffLine{Op: models.DiffDelete, LeftNo: i + 1, Left: left[i]}
}

func insertLine(right []string, j int) models.DiffLine {
	return models.DiffLine{Op: models.DiffInsert, RightNo: j + 1, Right: right[j]}
}

// splitLines splits on "\n". A trailing newline does not open a new line and
// an empty text has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// DiffSides rebuilds the left and right texts, as lines, from a payload.
func DiffSides(p models.DiffPayload) (left, right []string) {
	for _, l := range p.Lines {
		if l.LeftNo > 0 {
			left = append(left, l.Left)
		}
		if l.RightNo > 0 {
			right = append(right, l.Right)
		}
	}
	return left, right
}
