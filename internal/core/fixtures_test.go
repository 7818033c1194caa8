package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// memSource is a SheetSource over prebuilt tables that counts decodes.
type memSource struct {
	names   []string
	tables  map[string]*Table
	fail    map[string]error
	decodes map[string]int
	closes  int
}

func newMemSource(sheets ...Sheet) *memSource {
	src := &memSource{
		tables:  make(map[string]*Table),
		fail:    make(map[string]error),
		decodes: make(map[string]int),
	}
	for _, sh := range sheets {
		src.names = append(src.names, sh.Name)
		src.tables[sh.Name] = sh.Table
	}
	return src
}

func (m *memSource) SheetNames() []string { return m.names }

func (m *memSource) Close() error {
	m.closes++
	return nil
}

func (m *memSource) DecodeSheet(name string) (*Table, error) {
	m.decodes[name]++
	if err := m.fail[name]; err != nil {
		return nil, err
	}
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("no sheet %q", name)
	}
	return t.Clone(), nil
}

// fakeCodec decodes to a fixed source and records every encode.
type fakeCodec struct {
	src       SheetSource
	decodeErr error
	encodeErr error
	encoded   [][]Sheet
}

func (c *fakeCodec) Decode([]byte) (SheetSource, error) {
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	return c.src, nil
}

func (c *fakeCodec) Encode(sheets []Sheet) ([]byte, error) {
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	c.encoded = append(c.encoded, sheets)
	return []byte(fmt.Sprintf("encoded:%d", len(c.encoded))), nil
}

func (c *fakeCodec) lastNames() []string {
	if len(c.encoded) == 0 {
		return nil
	}
	var names []string
	for _, sh := range c.encoded[len(c.encoded)-1] {
		names = append(names, sh.Name)
	}
	return names
}

// memStore is an in-memory Store and AuditSink.
type memStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saveErr error
	entries []AuditEntry
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.blobs[key] = data
	return nil
}

func (s *memStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *memStore) Append(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memStore) actions() []AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditAction, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

var errDiskFull = errors.New("disk full")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// peopleTable has a string, a number and a date column.
func peopleTable() *Table {
	t := NewTable([]string{"Name", "Age", "Joined"})
	t.Append(Text("Alice"), Number(34), Date(day(2023, 1, 15)))
	t.Append(Text("bob"), Number(27), Date(day(2023, 3, 2)))
	t.Append(Text("Carol"), Number(41), Value{})
	t.Append(Text("Dave 12"), Number(12.5), Date(day(2023, 6, 30)))
	return t
}

func ordersTable() *Table {
	t := NewTable([]string{"Order", "Customer", "Total"})
	t.Append(Number(1001), Text("alice"), Number(19.99))
	t.Append(Number(1002), Text("Eve"), Number(120))
	return t
}

func testWorkbook() (*Workbook, *memSource) {
	src := newMemSource(
		Sheet{Name: "People", Table: peopleTable()},
		Sheet{Name: "Orders", Table: ordersTable()},
	)
	wb, err := NewWorkbook(src)
	if err != nil {
		panic(err)
	}
	return wb, src
}

func parseDay(t interface{ Fatalf(string, ...any) }, s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}
