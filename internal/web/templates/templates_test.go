package templates

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

func TestTableViewEscapesCells(t *testing.T) {
	tbl := core.NewTable([]string{"<Name>", "Qty"})
	tbl.Append(core.Text("<script>x</script>"), core.Number(3))
	tbl.Append(core.Text("Bob & Co"), core.Number(4))

	out := render(t, TableView(tbl, 0))
	assert.Contains(t, out, "<th>&lt;Name&gt;</th>")
	assert.Contains(t, out, "&lt;script&gt;x&lt;/script&gt;")
	assert.Contains(t, out, "Bob &amp; Co")
	assert.NotContains(t, out, "<script>")

	out = render(t, TableView(tbl, 1))
	assert.Contains(t, out, "Showing 1 of 2 rows.")

	assert.Contains(t, render(t, TableView(nil, 0)), "This sheet is empty.")
}

func TestPageEscapesSheetNames(t *testing.T) {
	tbl := core.NewTable([]string{"A"})
	out := render(t, Page(PageData{
		FileName: "a<b>.xlsx",
		Sheets:   []string{"50% off", `Q"1"`},
		Active:   `Q"1"`,
		Table:    tbl,
	}))
	assert.Contains(t, out, "a&lt;b&gt;.xlsx")
	assert.Contains(t, out, `href="/?sheet=50%25+off"`)
	assert.Contains(t, out, `data-sheet="Q&#34;1&#34;"`)
}

func TestErrorAlert(t *testing.T) {
	out := render(t, ErrorAlert("bad <input>", "Try again", "VAL001"))
	assert.Contains(t, out, "bad &lt;input&gt;")
	assert.Contains(t, out, "Try again")
	assert.Contains(t, out, "(VAL001)")

	assert.NotContains(t, render(t, ErrorAlert("oops", "", "")), "muted")
}
