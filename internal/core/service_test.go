package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc   *Service
	codec *fakeCodec
	store *memStore
	sess  *Session
}

func newServiceFixture(t *testing.T, opts Options) *serviceFixture {
	t.Helper()
	src := newMemSource(
		Sheet{Name: "People", Table: peopleTable()},
		Sheet{Name: "Orders", Table: ordersTable()},
	)
	codec := &fakeCodec{src: src}
	store := newMemStore()
	svc, err := NewService(codec, store, store, opts)
	require.NoError(t, err)
	return &serviceFixture{svc: svc, codec: codec, store: store, sess: NewSession("s1")}
}

func (f *serviceFixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.LoadWorkbook(context.Background(), f.sess, "book.xlsx", []byte("raw")))
}

func (f *serviceFixture) state() State {
	var st State
	_ = f.sess.View(func(s State) error { st = s; return nil })
	return st
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(nil, newMemStore(), nil, Options{})
	assert.Error(t, err)
	_, err = NewService(&fakeCodec{}, nil, nil, Options{})
	assert.Error(t, err)
}

func TestLoadWorkbook(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)

	st := f.state()
	assert.Equal(t, "People", st.Active)
	assert.Equal(t, "book.xlsx", st.FileName)
	assert.Nil(t, st.Pending)
	assert.Equal(t, []byte("raw"), f.store.blobs["s1"], "upload is persisted as sent")
	assert.Equal(t, []AuditAction{ActionUpload}, f.store.actions())
}

func TestLoadWorkbookDecodeFailureKeepsState(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)

	f.codec.decodeErr = errors.New("zip: not a valid zip file")
	err := f.svc.LoadWorkbook(context.Background(), f.sess, "bad.xlsx", []byte("junk"))

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "book.xlsx", f.state().FileName)
}

func TestLoadWorkbookClearsPendingEdit(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)
	_, err := f.svc.EditCell(context.Background(), f.sess, "People", 0, "Name", "Al")
	require.NoError(t, err)

	f.load(t)
	assert.Nil(t, f.state().Pending)
}

func TestOperationsBeforeUpload(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.AddSheet(ctx, f.sess, "X"), ErrNoWorkbook)
	assert.ErrorIs(t, f.svc.SelectSheet(f.sess, "X"), ErrNoWorkbook)
	_, err := f.svc.SearchAll(f.sess, "x", AllColumns, ModeName)
	assert.ErrorIs(t, err, ErrNoWorkbook)
	_, err = f.svc.ExportEdits(ctx, f.sess)
	assert.ErrorIs(t, err, ErrNoWorkbook)
}

func TestAddSheetWritesThrough(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)

	require.NoError(t, f.svc.AddSheet(context.Background(), f.sess, "Notes"))
	assert.Equal(t, []string{"People", "Orders", "Notes"}, f.state().Workbook.SheetNames())
	assert.Equal(t, []string{"People", "Orders", "Notes"}, f.codec.lastNames())
	assert.Equal(t, []byte("encoded:1"), f.store.blobs["s1"])
}

func TestStructuralFailureKeepsPreviousState(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)
	before := f.state()

	f.store.saveErr = errDiskFull
	err := f.svc.RenameSheet(context.Background(), f.sess, "People", "Staff")

	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "save", ioe.Op)
	assert.ErrorIs(t, err, errDiskFull)
	after := f.state()
	assert.Same(t, before.Workbook, after.Workbook)
	assert.Equal(t, "People", after.Active)
	assert.Equal(t, []byte("raw"), f.store.blobs["s1"])

	f.store.saveErr = nil
	f.codec.encodeErr = errors.New("bad style")
	err = f.svc.AddSheet(context.Background(), f.sess, "Notes")
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "encode", ioe.Op)
	assert.Equal(t, 2, f.state().Workbook.Len())
}

func TestRemoveActiveSheet(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SelectSheet(f.sess, "Orders"))
	require.NoError(t, f.svc.RemoveSheet(ctx, f.sess, "Orders"))
	assert.Equal(t, "People", f.state().Active)

	err := f.svc.RemoveSheet(ctx, f.sess, "People")
	assert.ErrorAs(t, err, new(ValidationError))
	assert.Equal(t, 1, f.state().Workbook.Len())
}

func TestRenameUpdatesActiveAndPending(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)
	ctx := context.Background()

	_, err := f.svc.EditCell(ctx, f.sess, "People", 1, "Name", "Robert")
	require.NoError(t, err)
	require.NoError(t, f.svc.RenameSheet(ctx, f.sess, "People", "Staff"))

	st := f.state()
	assert.Equal(t, "Staff", st.Active)
	require.NotNil(t, st.Pending)
	assert.Equal(t, "Staff", st.Pending.Sheet)
	assert.Equal(t, "Staff", st.Pending.Table.Cell(0, OriginColumn).String())

	data, err := f.svc.ExportEdits(ctx, f.sess)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, []string{"Staff", "Orders"}, f.codec.lastNames())
	exported := f.codec.encoded[len(f.codec.encoded)-1][0].Table
	assert.Equal(t, "Robert", exported.Cell(1, "Name").String())
}

func TestEditCellReplacesPending(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)
	ctx := context.Background()

	_, err := f.svc.EditCell(ctx, f.sess, "People", 0, "Name", "First")
	require.NoError(t, err)
	edit, err := f.svc.EditCell(ctx, f.sess, "People", 1, "Age", "99")
	require.NoError(t, err)

	assert.Equal(t, Number(27), edit.OldValue)
	pending, err := f.svc.Pending(f.sess)
	require.NoError(t, err)
	assert.Same(t, edit, pending)
	assert.Equal(t, "Alice", pending.Table.Cell(0, "Name").String(), "earlier edit is not merged")

	_, err = f.svc.EditCell(ctx, f.sess, "People", 10, "Age", "1")
	assert.ErrorAs(t, err, new(ValidationError))
	pending, _ = f.svc.Pending(f.sess)
	assert.Same(t, edit, pending, "failed edit keeps the previous one")
}

func TestExportEditsLegacy(t *testing.T) {
	f := newServiceFixture(t, Options{LegacyEditExport: true})
	f.load(t)
	ctx := context.Background()

	_, err := f.svc.ExportEdits(ctx, f.sess)
	assert.ErrorAs(t, err, new(ValidationError))

	_, err = f.svc.EditCell(ctx, f.sess, "Orders", 0, "Customer", "Alicia")
	require.NoError(t, err)
	_, err = f.svc.ExportEdits(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders"}, f.codec.lastNames())
}

func TestViewSheetFiltersAndSelects(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)

	got, err := f.svc.ViewSheet(f.sess, "People", ViewFilter{
		DateColumn: "Joined",
		Start:      day(2023, 1, 1),
		End:        day(2023, 12, 31),
		Substrings: map[string]string{"Name": "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Dave 12"}, names(got))

	_, err = f.svc.ViewSheet(f.sess, "Orders", ViewFilter{})
	require.NoError(t, err)
	assert.Equal(t, "Orders", f.state().Active)

	_, err = f.svc.ViewSheet(f.sess, "People", ViewFilter{DateColumn: "Name"})
	assert.ErrorAs(t, err, new(ValidationError))
	assert.Equal(t, "Orders", f.state().Active, "failed view does not change selection")
}

func TestDownload(t *testing.T) {
	f := newServiceFixture(t, Options{})
	f.load(t)
	ctx := context.Background()

	name, data, err := f.svc.Download(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, "book.xlsx", name)
	assert.Equal(t, []byte("raw"), data)

	require.NoError(t, f.svc.Close(ctx, f.sess))
	_, data, err = f.svc.Download(ctx, f.sess)
	require.NoError(t, err)
	assert.Equal(t, []byte("encoded:1"), data, "re-encoded when the store has no copy")
}

func TestDiscard(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()
	assert.ErrorIs(t, f.svc.Discard(ctx, f.sess), ErrNoWorkbook)

	f.load(t)
	require.NoError(t, f.svc.Discard(ctx, f.sess))
	assert.False(t, f.state().Loaded())
	_, err := f.store.Load(ctx, f.sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.store.actions(), ActionDiscard)

	_, _, err = f.svc.Download(ctx, f.sess)
	assert.ErrorIs(t, err, ErrNoWorkbook)
}

func TestReplacedWorkbooksAreClosed(t *testing.T) {
	f := newServiceFixture(t, Options{})
	ctx := context.Background()
	first := f.codec.src.(*memSource)
	f.load(t)

	second := newMemSource(Sheet{Name: "Only", Table: peopleTable()})
	f.codec.src = second
	f.load(t)
	assert.Equal(t, 1, first.closes, "re-upload closes the previous source")
	assert.Equal(t, 0, second.closes)

	require.NoError(t, f.svc.AddSheet(ctx, f.sess, "Extra"))
	assert.Equal(t, 1, second.closes, "structural edits release the decoded source")

	third := newMemSource(Sheet{Name: "Last", Table: ordersTable()})
	f.codec.src = third
	f.load(t)
	require.NoError(t, f.svc.Discard(ctx, f.sess))
	assert.Equal(t, 1, third.closes)
}

func TestLoadWorkbookFailureClosesSource(t *testing.T) {
	f := newServiceFixture(t, Options{})
	src := f.codec.src.(*memSource)
	f.store.saveErr = errDiskFull

	err := f.svc.LoadWorkbook(context.Background(), f.sess, "book.xlsx", []byte("raw"))
	require.Error(t, err)
	assert.Equal(t, 1, src.closes)
}

func TestLazySheetDecodeTakesDecodeSlot(t *testing.T) {
	f := newServiceFixture(t, Options{MaxConcurrentDecodes: 1, DecodeWait: 10 * time.Millisecond})
	f.load(t)

	require.NoError(t, f.svc.decodes.Acquire(context.Background()))
	_, err := f.svc.ViewSheet(f.sess, "Orders", ViewFilter{})
	assert.ErrorIs(t, err, ErrTooManyUploads)

	f.svc.decodes.Release()
	_, err = f.svc.ViewSheet(f.sess, "Orders", ViewFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.svc.UploadStatus().Active)
}
