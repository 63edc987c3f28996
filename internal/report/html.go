package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/RishiKendai/dupcheck/internal/models"
)

var diffTableTmpl = template.Must(template.New("diff").Funcs(template.FuncMap{
	"leftClass":  leftClass,
	"rightClass": rightClass,
}).Parse(`<table class="diff" summary="Code differences">
<colgroup></colgroup><colgroup></colgroup><colgroup></colgroup><colgroup></colgroup>
<thead><tr><th class="diff_next"></th><th colspan="1" class="diff_header">{{.LeftTitle}}</th><th class="diff_next"></th><th colspan="1" class="diff_header">{{.RightTitle}}</th></tr></thead>
<tbody>
{{- range .Lines}}
<tr class="diff_{{.Op}}"><td class="diff_header">{{if .LeftNo}}{{.LeftNo}}{{end}}</td><td class="{{leftClass .Op}}">{{.Left}}</td><td class="diff_header">{{if .RightNo}}{{.RightNo}}{{end}}</td><td class="{{rightClass .Op}}">{{.Right}}</td></tr>
{{- end}}
</tbody>
</table>`))

func leftClass(op models.DiffOp) string {
	switch op {
	case models.DiffDelete:
		return "diff_sub"
	case models.DiffReplace:
		return "diff_chg"
	}
	return ""
}

func rightClass(op models.DiffOp) string {
	switch op {
	case models.DiffInsert:
		return "diff_add"
	case models.DiffReplace:
		return "diff_chg"
	}
	return ""
}

// HTMLTable renders a diff payload as a two-column HTML table, flagged
// submission on the left. Source text is escaped.
func HTMLTable(payload models.DiffPayload) (template.HTML, error) {
	var buf bytes.Buffer
	err := diffTableTmpl.Execute(&buf, struct {
		LeftTitle  string
		RightTitle string
		Lines      []models.DiffLine
	}{
		LeftTitle:  "Original Submission",
		RightTitle: "Similar Submission",
		Lines:      payload.Lines,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render diff table: %w", err)
	}
	return template.HTML(buf.String()), nil
}
