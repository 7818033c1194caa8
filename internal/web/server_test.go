package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/sheetdesk/internal/codec"
	"github.com/JonMunkholm/sheetdesk/internal/config"
	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/JonMunkholm/sheetdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// workbookFixture builds the People/Orders workbook used across handler tests.
func workbookFixture(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "People"))
	people := [][]any{
		{"Name", "Age", "Joined"},
		{"Alice", 34, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"Bob", 29, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{"Carol", 41, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	writeRows(t, f, "People", people)

	_, err := f.NewSheet("Orders")
	require.NoError(t, err)
	writeRows(t, f, "Orders", [][]any{
		{"Item", "Qty"},
		{"Widget", 5},
		{"Gadget", 12},
	})

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func writeRows(t *testing.T, f *excelize.File, sheet string, rows [][]any) {
	t.Helper()
	for i, r := range rows {
		for j, v := range r {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{RequestTimeout: 30 * time.Second},
		Upload:  config.UploadConfig{MaxFileSize: 10 << 20},
		Session: config.SessionConfig{IdleTimeout: time.Hour, Max: 10},
		Security: config.SecurityConfig{
			EnableCSP: true,
		},
	}
}

// client drives the router and carries the session cookie between requests.
type client struct {
	t      *testing.T
	srv    *Server
	dir    string
	cookie *http.Cookie
}

func newClient(t *testing.T, mutate func(*config.Config)) *client {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	cdc := codec.New(codec.Options{})
	svc, err := core.NewService(cdc, fs, fs, core.Options{LegacyEditExport: cfg.Export.LegacyEdits})
	require.NoError(t, err)

	srv := NewServer(svc, core.NewSessionStore(cfg.Session.IdleTimeout, cfg.Session.Max), cdc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &client{t: t, srv: srv, dir: dir}
}

// fork returns a second client with its own session on the same server.
func (c *client) fork() *client {
	return &client{t: c.t, srv: c.srv, dir: c.dir}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.srv.Router().ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (c *client) send(method, target string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(c.t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) upload(name string, data []byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		part, err := mw.CreateFormFile("file", name)
		require.NoError(c.t, err)
		_, err = part.Write(data)
		require.NoError(c.t, err)
	} else {
		require.NoError(c.t, mw.WriteField("note", "no file"))
	}
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/workbook", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *client) mustUpload() {
	c.t.Helper()
	rec := c.upload("people.xlsx", workbookFixture(c.t))
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[ErrorResponse](t, rec).Code
}

// tableJSON mirrors the wire shape of core.Table.
type tableJSON struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// sheetJSON mirrors the wire shape of SheetResponse.
type sheetJSON struct {
	Sheet string    `json:"sheet"`
	Count int       `json:"count"`
	Table tableJSON `json:"table"`
}

// searchJSON mirrors the wire shape of SearchResponse.
type searchJSON struct {
	Found bool      `json:"found"`
	Count int       `json:"count"`
	Table tableJSON `json:"table"`
}

func TestHealthz(t *testing.T) {
	c := newClient(t, nil)
	rec := c.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"max_concurrent":`)
	assert.Nil(t, c.cookie, "health checks do not start sessions")
}

func TestAPIWithoutWorkbook(t *testing.T) {
	c := newClient(t, nil)

	rec := c.get("/api/sheets")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "WB001", errorCode(t, rec))
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)

	rec = c.get("/api/workbook")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadAndListSheets(t *testing.T) {
	c := newClient(t, nil)
	rec := c.upload("people.xlsx", workbookFixture(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	list := decodeBody[core.SheetList](t, rec)
	assert.Equal(t, "people.xlsx", list.FileName)
	assert.Equal(t, []string{"People", "Orders"}, list.Sheets)
	assert.Equal(t, "People", list.Active)

	_, err := os.Stat(filepath.Join(c.dir, c.cookie.Value+".xlsx"))
	assert.NoError(t, err, "upload is persisted under the session id")

	rec = c.get("/api/sheets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, list, decodeBody[core.SheetList](t, rec))
}

func TestDiscardWorkbook(t *testing.T) {
	c := newClient(t, nil)
	rec := c.do(httptest.NewRequest(http.MethodDelete, "/api/workbook", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	c.mustUpload()
	rec = c.do(httptest.NewRequest(http.MethodDelete, "/api/workbook", nil))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	_, err := os.Stat(filepath.Join(c.dir, c.cookie.Value+".xlsx"))
	assert.True(t, os.IsNotExist(err), "stored copy is deleted")
	assert.Equal(t, http.StatusConflict, c.get("/api/sheets").Code)
}

func TestUploadErrors(t *testing.T) {
	t.Run("not a workbook", func(t *testing.T) {
		c := newClient(t, nil)
		rec := c.upload("notes.txt", []byte("just some text"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "FILE002", errorCode(t, rec))
	})

	t.Run("missing file", func(t *testing.T) {
		c := newClient(t, nil)
		rec := c.upload("", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "FILE004", errorCode(t, rec))
	})

	t.Run("too large", func(t *testing.T) {
		c := newClient(t, func(cfg *config.Config) { cfg.Upload.MaxFileSize = 512 })
		rec := c.upload("people.xlsx", workbookFixture(t))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "FILE001", errorCode(t, rec))
	})

	t.Run("failed upload keeps previous workbook", func(t *testing.T) {
		c := newClient(t, nil)
		c.mustUpload()
		rec := c.upload("broken.xlsx", []byte("PK broken"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = c.get("/api/sheets")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "people.xlsx", decodeBody[core.SheetList](t, rec).FileName)
	})
}

func TestSheetLifecycle(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	rec := c.send(http.MethodPost, "/api/sheets", map[string]string{"name": "Notes"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"People", "Orders", "Notes"}, decodeBody[core.SheetList](t, rec).Sheets)

	rec = c.send(http.MethodPost, "/api/sheets", map[string]string{"name": "notes"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "names are unique ignoring case")
	assert.Equal(t, "VAL001", errorCode(t, rec))

	rec = c.send(http.MethodPost, "/api/sheets/Orders/rename", map[string]string{"name": "Sales Q1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"People", "Sales Q1", "Notes"}, decodeBody[core.SheetList](t, rec).Sheets)

	rec = c.get("/api/sheets/Sales%20Q1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[sheetJSON](t, rec).Count)

	rec = c.do(httptest.NewRequest(http.MethodDelete, "/api/sheets/Notes", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"People", "Sales Q1"}, decodeBody[core.SheetList](t, rec).Sheets)

	rec = c.do(httptest.NewRequest(http.MethodDelete, "/api/sheets/Missing", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL001", errorCode(t, rec))

	rec = c.send(http.MethodPost, "/api/sheets", map[string]string{"name": "a/b"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.send(http.MethodPost, "/api/sheets", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	// the stored workbook reflects every structural change
	rec = c.get("/api/workbook")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "people.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"People", "Sales Q1"}, f.GetSheetList())
}

func TestSheetNamesNeedingEscapes(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	rec := c.send(http.MethodPost, "/api/sheets", map[string]string{"name": "50% off"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.get("/api/sheets/50%25%20off")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "50% off", decodeBody[sheetJSON](t, rec).Sheet)

	rec = c.get("/api/sheets/50%25%20off/search?q=x")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.send(http.MethodPost, "/api/sheets/50%25%20off/rename", map[string]string{"name": "Half-off"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"People", "Orders", "Half-off"}, decodeBody[core.SheetList](t, rec).Sheets)

	// needlessly escaped paths keep a RawPath and are routed on it
	rec = c.get("/api/sheets/Half%2Doff")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Half-off", decodeBody[sheetJSON](t, rec).Sheet)

	rec = c.do(httptest.NewRequest(http.MethodDelete, "/api/sheets/Half%2Doff", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"People", "Orders"}, decodeBody[core.SheetList](t, rec).Sheets)
}

func TestRemoveLastSheet(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	rec := c.do(httptest.NewRequest(http.MethodDelete, "/api/sheets/Orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(httptest.NewRequest(http.MethodDelete, "/api/sheets/People", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Message, "only sheet")
}

func TestViewSheet(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	rec := c.get("/api/sheets/Orders")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[sheetJSON](t, rec)
	assert.Equal(t, "Orders", view.Sheet)
	assert.Equal(t, []string{"Item", "Qty", core.OriginColumn}, view.Table.Columns)
	assert.Equal(t, []any{"Widget", float64(5), "Orders"}, view.Table.Rows[0])

	rec = c.get("/api/sheets")
	assert.Equal(t, "Orders", decodeBody[core.SheetList](t, rec).Active, "viewing selects the sheet")

	tests := []struct {
		name  string
		query string
		want  int
		code  string
	}{
		{"date range end inclusive", "date_column=Joined&start=2024-01-01&end=2024-03-02", 2, ""},
		{"date range with time", "date_column=Joined&start=2023-12-31T00:00:00Z&end=2024-01-15T00:00:00Z", 2, ""},
		{"substring", "filter[Name]=ali", 1, ""},
		{"substring and range", "filter[Name]=o&date_column=Joined&start=2024-01-01&end=2024-12-31", 1, ""},
		{"bad date", "date_column=Joined&start=yesterday&end=2024-01-01", 0, "VAL005"},
		{"missing bound", "date_column=Joined&start=2024-01-01", 0, "VAL005"},
		{"unknown column", "filter[Nope]=x", 0, "VAL002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.get("/api/sheets/People?" + tt.query)
			if tt.code != "" {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, tt.code, errorCode(t, rec))
				return
			}
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decodeBody[sheetJSON](t, rec).Count)
		})
	}
}

func TestSearch(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	tests := []struct {
		name   string
		target string
		found  bool
		count  int
		code   string
	}{
		{"name mode ignores case", "/api/sheets/People/search?q=BO", true, 1, ""},
		{"no match", "/api/sheets/People/search?q=zzz", false, 0, ""},
		{"empty query returns all", "/api/sheets/People/search", true, 3, ""},
		{"number in column", "/api/sheets/People/search?q=4&column=Age&mode=number", true, 2, ""},
		{"number rejects text", "/api/sheets/People/search?q=four&mode=number", false, 0, "VAL004"},
		{"bad mode", "/api/sheets/People/search?q=a&mode=fuzzy", false, 0, "VAL006"},
		{"unknown column", "/api/sheets/People/search?q=a&column=Nope", false, 0, "VAL002"},
		{"unknown sheet", "/api/sheets/Nope/search?q=a", false, 0, "VAL001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.get(tt.target)
			if tt.code != "" {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, tt.code, errorCode(t, rec))
				return
			}
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			got := decodeBody[searchJSON](t, rec)
			assert.Equal(t, tt.found, got.Found)
			assert.Equal(t, tt.count, got.Count)
			assert.Len(t, got.Table.Rows, tt.count)
		})
	}

	t.Run("across workbook", func(t *testing.T) {
		rec := c.get("/api/search?q=widget")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decodeBody[searchJSON](t, rec)
		require.True(t, got.Found)
		require.Len(t, got.Table.Rows, 1)
		assert.Contains(t, got.Table.Columns, core.OriginColumn)

		origin := -1
		for i, col := range got.Table.Columns {
			if col == core.OriginColumn {
				origin = i
			}
		}
		assert.Equal(t, "Orders", got.Table.Rows[0][origin])
	})
}

func TestEditAndExport(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	rec := c.get("/api/edits/export")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL007", errorCode(t, rec))

	rec = c.get("/api/edits")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":null}`, rec.Body.String())

	rec = c.send(http.MethodPost, "/api/sheets/People/edit", map[string]any{"row": 0, "column": "Name", "value": "Alicia"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.get("/api/edits")
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[struct {
		Pending struct {
			Sheet    string `json:"sheet"`
			Row      int    `json:"row"`
			Column   string `json:"column"`
			OldValue string `json:"oldValue"`
			Value    string `json:"value"`
		} `json:"pending"`
	}](t, rec).Pending
	assert.Equal(t, "People", pending.Sheet)
	assert.Equal(t, "Alice", pending.OldValue)
	assert.Equal(t, "Alicia", pending.Value)

	rec = c.get("/api/edits/export")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "people_edited.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"People", "Orders"}, f.GetSheetList())
	name, err := f.GetCellValue("People", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", name)

	// the edit is not written through; the session's workbook is unchanged
	rec = c.get("/api/sheets/People/search?q=alicia")
	assert.False(t, decodeBody[searchJSON](t, rec).Found)

	t.Run("invalid edits", func(t *testing.T) {
		tests := []struct {
			name string
			body map[string]any
			code string
		}{
			{"row out of range", map[string]any{"row": 9, "column": "Name", "value": "x"}, "VAL003"},
			{"missing row", map[string]any{"column": "Name", "value": "x"}, "VAL003"},
			{"unknown column", map[string]any{"row": 0, "column": "Nope", "value": "x"}, "VAL002"},
			{"missing value", map[string]any{"row": 0, "column": "Name"}, "VAL007"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := c.send(http.MethodPost, "/api/sheets/People/edit", tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, tt.code, errorCode(t, rec))
			})
		}
	})
}

func TestLegacyEditExport(t *testing.T) {
	c := newClient(t, func(cfg *config.Config) { cfg.Export.LegacyEdits = true })
	c.mustUpload()

	rec := c.send(http.MethodPost, "/api/sheets/Orders/edit", map[string]any{"row": 1, "column": "Qty", "value": "13"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.get("/api/edits/export")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Orders"}, f.GetSheetList())
}

func TestCharts(t *testing.T) {
	c := newClient(t, nil)
	c.mustUpload()

	rec := c.get("/api/sheets/Orders/charts/pie?column=Item")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pie := decodeBody[core.PieChartData](t, rec)
	assert.Equal(t, 2, pie.Total)
	assert.Len(t, pie.Slices, 2)

	rec = c.get("/api/sheets/People/charts/line?x=Joined&y=Age")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	line := decodeBody[core.LineChartData](t, rec)
	assert.Len(t, line.Points, 3)
	require.NotNil(t, line.Summary)
	assert.InDelta(t, 34.666, line.Summary.Mean, 0.01)
	assert.NotNil(t, line.Trend)

	rec = c.get("/api/sheets/People/charts/line?x=Joined&y=Age&format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Age_line.xlsx")

	rec = c.get("/api/sheets/Orders/charts/pie?column=Item&format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.NotEmpty(t, f.GetSheetList())

	rec = c.get("/api/sheets/Orders/charts/pie?column=Item&format=svg")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.get("/api/sheets/Orders/charts/pie?column=Nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL002", errorCode(t, rec))
}

func TestSessionsAreIsolated(t *testing.T) {
	a := newClient(t, nil)
	a.mustUpload()

	b := a.fork()
	rec := b.get("/api/sheets")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, b.cookie)
	assert.NotEqual(t, a.cookie.Value, b.cookie.Value)

	// an unknown cookie starts a fresh session
	c := a.fork()
	c.cookie = &http.Cookie{Name: SessionCookie, Value: "expired"}
	rec = c.get("/api/sheets")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEqual(t, "expired", c.cookie.Value)
}

func TestTooManySessions(t *testing.T) {
	a := newClient(t, func(cfg *config.Config) { cfg.Session.Max = 1 })
	a.get("/api/sheets")

	rec := a.fork().get("/api/sheets")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SES002", errorCode(t, rec))
}

func TestAPIKeyRequired(t *testing.T) {
	c := newClient(t, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"secret"}
	})

	rec := c.get("/api/sheets")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sheets", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = c.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusOK, c.get("/healthz").Code)
}

func TestRejectedCallersHoldNoSession(t *testing.T) {
	c := newClient(t, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"secret"}
		cfg.Session.Max = 2
	})

	for range 3 {
		anon := c.fork()
		assert.Equal(t, http.StatusUnauthorized, anon.get("/api/sheets").Code)
		assert.Nil(t, anon.cookie, "no session cookie without a key")

		req := httptest.NewRequest(http.MethodGet, "/api/sheets", nil)
		req.Header.Set("X-API-Key", "wrong")
		assert.Equal(t, http.StatusForbidden, anon.do(req).Code)
	}
	assert.Equal(t, 0, c.srv.sessions.Len())

	req := httptest.NewRequest(http.MethodGet, "/api/sheets", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := c.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code, "keyed caller gets a session and sees no workbook")
	assert.Equal(t, 1, c.srv.sessions.Len())
}

func TestRateLimit(t *testing.T) {
	c := newClient(t, func(cfg *config.Config) {
		cfg.Rate.Enabled = true
		cfg.Rate.RequestsPerMinute = 2
		cfg.Rate.UploadLimit = 1
	})

	assert.Equal(t, http.StatusOK, c.get("/healthz").Code)
	assert.Equal(t, http.StatusOK, c.get("/healthz").Code)
	rec := c.get("/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", errorCode(t, rec))
}

func TestPage(t *testing.T) {
	c := newClient(t, nil)

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="upload"`)
	assert.NotContains(t, body, "<table>")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	c.mustUpload()
	rec = c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "people.xlsx")
	assert.Contains(t, body, "<td>Alice</td>")

	rec = c.get("/?sheet=Orders")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<td>Widget</td>")

	rec = c.get("/?sheet=Nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestHTMXErrorPartial(t *testing.T) {
	c := newClient(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/?sheet=x", nil)
	req.Header.Set("HX-Request", "true")
	c.mustUpload()
	rec := c.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `role="alert"`)
	assert.Contains(t, string(body), "VAL001")
}
