// Package templates holds the HTML components of the workbook viewer.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/a-h/templ"
)

// PageData is everything the main page shows. A zero Sheets means no
// workbook has been uploaded yet.
type PageData struct {
	FileName string
	Sheets   []string
	Active   string
	Table    *core.Table
	Pending  *core.PendingEdit
	RowLimit int
}

const pageStyle = `
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1f2933; }
nav a { margin-right: .75rem; }
nav a.active { font-weight: 600; text-decoration: none; }
table { border-collapse: collapse; margin-top: 1rem; font-size: .9rem; }
th, td { border: 1px solid #d9e2ec; padding: .25rem .5rem; text-align: left; }
th { background: #f0f4f8; }
.alert { border: 1px solid #e12d39; background: #ffe3e3; padding: .5rem 1rem; margin: 1rem 0; }
.muted { color: #829ab1; }
`

const pageScript = `
async function send(method, url, body) {
  const opts = { method: method, headers: { "Accept": "application/json" } };
  if (body instanceof FormData) { opts.body = body; }
  else if (body) { opts.body = JSON.stringify(body); opts.headers["Content-Type"] = "application/json"; }
  const res = await fetch(url, opts);
  if (!res.ok) {
    const err = await res.json().catch(() => ({ message: res.statusText, code: "" }));
    document.getElementById("errors").textContent = err.message + " (" + err.code + ")";
    return;
  }
  location.reload();
}
function sheetURL(name) { return "/api/sheets/" + encodeURIComponent(name); }
document.addEventListener("submit", (e) => {
  const f = e.target;
  e.preventDefault();
  if (f.id === "upload") { send("POST", "/api/workbook", new FormData(f)); }
  if (f.id === "add-sheet") { send("POST", "/api/sheets", { name: f.name.value }); }
  if (f.id === "rename-sheet") { send("POST", sheetURL(f.dataset.sheet) + "/rename", { name: f.name.value }); }
  if (f.id === "remove-sheet") { send("DELETE", sheetURL(f.dataset.sheet)); }
});
`

// Page renders the full HTML page.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\">")
		b.WriteString("<title>sheetdesk</title><style>" + pageStyle + "</style></head><body>")
		b.WriteString("<h1>sheetdesk</h1>")
		b.WriteString(`<div id="errors" role="status"></div>`)

		b.WriteString(`<form id="upload" enctype="multipart/form-data">`)
		b.WriteString(`<input type="file" name="file" accept=".xlsx,.xlsm,.xltx,.xltm" required> `)
		b.WriteString(`<button type="submit">Upload</button></form>`)

		if len(data.Sheets) > 0 {
			writeWorkbook(ctx, &b, data)
		}

		b.WriteString("<script>" + pageScript + "</script></body></html>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeWorkbook(ctx context.Context, b *strings.Builder, data PageData) {
	esc := templ.EscapeString[string]

	fmt.Fprintf(b, `<h2>%s <a href="/api/workbook">download</a></h2>`, esc(data.FileName))

	b.WriteString("<nav>")
	for _, name := range data.Sheets {
		class := ""
		if name == data.Active {
			class = ` class="active"`
		}
		fmt.Fprintf(b, `<a%s href="/?sheet=%s">%s</a>`, class, esc(url.QueryEscape(name)), esc(name))
	}
	b.WriteString("</nav>")

	b.WriteString(`<div><form id="add-sheet"><input name="name" placeholder="New sheet" required> <button>Add</button></form></div>`)
	fmt.Fprintf(b, `<div><form id="rename-sheet" data-sheet="%s"><input name="name" placeholder="Rename %s" required> <button>Rename</button></form>`,
		esc(data.Active), esc(data.Active))
	fmt.Fprintf(b, `<form id="remove-sheet" data-sheet="%s"><button>Remove %s</button></form></div>`,
		esc(data.Active), esc(data.Active))

	if p := data.Pending; p != nil {
		fmt.Fprintf(b, `<p>Pending edit: %s row %d, %s = %q. <a href="/api/edits/export">Export edits</a></p>`,
			esc(p.Sheet), p.Row, esc(p.Column), esc(p.Value))
	}

	if err := TableView(data.Table, data.RowLimit).Render(ctx, b); err != nil {
		b.WriteString(`<p class="muted">table unavailable</p>`)
	}
}

// TableView renders up to limit rows of t. A limit of 0 renders every row.
func TableView(t *core.Table, limit int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		esc := templ.EscapeString[string]
		var b strings.Builder

		if t == nil || len(t.Columns) == 0 {
			b.WriteString(`<p class="muted">This sheet is empty.</p>`)
			_, err := io.WriteString(w, b.String())
			return err
		}

		n := t.Len()
		if limit > 0 && n > limit {
			n = limit
		}

		b.WriteString("<table><thead><tr><th>#</th>")
		for _, c := range t.Columns {
			b.WriteString("<th>" + esc(c) + "</th>")
		}
		b.WriteString("</tr></thead><tbody>")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "<tr><td class=\"muted\">%d</td>", i)
			for _, c := range t.Columns {
				b.WriteString("<td>" + esc(t.Cell(i, c).String()) + "</td>")
			}
			b.WriteString("</tr>")
		}
		b.WriteString("</tbody></table>")
		if n < t.Len() {
			fmt.Fprintf(&b, `<p class="muted">Showing %d of %d rows.</p>`, n, t.Len())
		}

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorAlert renders an error message fragment.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		esc := templ.EscapeString[string]
		var b strings.Builder
		b.WriteString(`<div class="alert" role="alert"><strong>` + esc(message) + "</strong>")
		if action != "" {
			b.WriteString(" " + esc(action))
		}
		if code != "" {
			b.WriteString(` <span class="muted">(` + esc(code) + ")</span>")
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}
