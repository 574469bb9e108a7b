package catalog

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testFS() fstest.MapFS {
	mod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return fstest.MapFS{
		"README.md":                 {Data: []byte("# readme\n"), ModTime: mod},
		"src/app/main.py":           {Data: []byte("print('hi')\n"), ModTime: mod},
		"src/app/util.py":           {Data: []byte("def f(): pass\n"), ModTime: mod},
		"src/lib/Utils.py":          {Data: []byte("x = 1\n"), ModTime: mod},
		"node_modules/pkg/index.js": {Data: []byte("module.exports = {}\n"), ModTime: mod},
		".git/HEAD":                 {Data: []byte("ref: refs/heads/main\n"), ModTime: mod},
		"debug.log":                 {Data: []byte("noise\n"), ModTime: mod},
	}
}

func scanTestFS(t *testing.T) *Catalog {
	t.Helper()
	policy := DefaultIgnorePolicy()
	entries, err := Walk(testFS(), policy)
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	c, err := Scan("project", entries, policy)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return c
}

func TestScanFiltersIgnoredPaths(t *testing.T) {
	c := scanTestFS(t)

	want := []string{"README.md", "src/app/main.py", "src/app/util.py", "src/lib/Utils.py"}
	if diff := cmp.Diff(want, c.Paths()); diff != "" {
		t.Fatalf("Paths() mismatch (-want +got):\n%s", diff)
	}
	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}
	if c.Root() != "project" {
		t.Fatalf("Root() = %q", c.Root())
	}
}

func TestScanEmptyAfterFiltering(t *testing.T) {
	entries := []Entry{
		{Path: "node_modules/a.js", Size: 1},
		{Path: "app.log", Size: 1},
	}
	c, err := Scan("x", entries, DefaultIgnorePolicy())
	if !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil catalog on failure")
	}

	if _, err := Scan("x", nil, nil); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles for empty input, got %v", err)
	}
}

func TestScanNormalizesAndDeduplicates(t *testing.T) {
	entries := []Entry{
		{Path: "./src\\a.go", Size: 3},
		{Path: "src/a.go", Size: 99},
		{Path: "/b.go", Size: 1},
	}
	c, err := Scan("root", entries, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if diff := cmp.Diff([]string{"b.go", "src/a.go"}, c.Paths()); diff != "" {
		t.Fatalf("Paths() mismatch (-want +got):\n%s", diff)
	}
	rec, ok := c.Get("src/a.go")
	if !ok {
		t.Fatalf("expected src/a.go in catalog")
	}
	if rec.Size != 3 {
		t.Fatalf("first entry should win, got size %d", rec.Size)
	}
	if rec.Name() != "a.go" {
		t.Fatalf("Name() = %q", rec.Name())
	}
}

func TestLookupFold(t *testing.T) {
	c := scanTestFS(t)

	got, ok := c.LookupFold("SRC/LIB/utils.PY")
	if !ok || got != "src/lib/Utils.py" {
		t.Fatalf("LookupFold = %q, %v", got, ok)
	}
	if _, ok := c.LookupFold("src/nope.py"); ok {
		t.Fatalf("expected miss for unknown path")
	}
	if !c.Has("src/app/main.py") || c.Has("src/app/MAIN.py") {
		t.Fatalf("Has must be case-sensitive")
	}
}

func TestUnder(t *testing.T) {
	c := scanTestFS(t)

	if diff := cmp.Diff([]string{"src/app/main.py", "src/app/util.py"}, c.Under("src/app/")); diff != "" {
		t.Fatalf("Under mismatch (-want +got):\n%s", diff)
	}
	if got := c.Under("src/ap"); len(got) != 0 {
		t.Fatalf("Under must match whole segments, got %v", got)
	}
	if got := c.Under("."); len(got) != c.Len() {
		t.Fatalf("Under(.) returned %d paths, want %d", len(got), c.Len())
	}
}

func TestModTimePrefersHandle(t *testing.T) {
	fsys := fstest.MapFS{
		"a.txt": {Data: []byte("a"), ModTime: time.Unix(100, 0)},
	}
	c, err := Scan("r", []Entry{{Path: "a.txt", ModTime: time.Unix(50, 0), Handle: FSHandle(fsys, "a.txt")}}, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	got, ok := c.ModTime("a.txt")
	if !ok || !got.Equal(time.Unix(100, 0)) {
		t.Fatalf("ModTime = %v, %v; want handle time", got, ok)
	}

	c, err = Scan("r", []Entry{{Path: "gone.txt", ModTime: time.Unix(50, 0), Handle: FSHandle(fsys, "gone.txt")}}, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	got, ok = c.ModTime("gone.txt")
	if !ok || !got.Equal(time.Unix(50, 0)) {
		t.Fatalf("ModTime = %v, %v; want recorded time", got, ok)
	}
	if _, ok := c.ModTime("missing"); ok {
		t.Fatalf("expected no mod time for unknown path")
	}
}

func TestHandleRead(t *testing.T) {
	c := scanTestFS(t)
	rec, _ := c.Get("src/app/main.py")
	data, err := rec.Handle.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "print('hi')\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestTreeAggregates(t *testing.T) {
	entries := []Entry{
		{Path: "a/b/one.txt", Size: 10},
		{Path: "a/b/two.txt", Size: 20},
		{Path: "a/three.txt", Size: 5},
		{Path: "top.txt", Size: 1},
	}
	c, err := Scan("root", entries, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	tree := c.Tree()
	if tree.Size != 36 || tree.FileCount != 4 {
		t.Fatalf("root aggregate = %d bytes / %d files", tree.Size, tree.FileCount)
	}
	if c.TotalSize() != 36 {
		t.Fatalf("TotalSize() = %d", c.TotalSize())
	}

	a := tree.Children[0]
	if a.Name != "a" || !a.IsDir || a.Size != 35 || a.FileCount != 3 {
		t.Fatalf("unexpected first child %+v", a)
	}
	b := a.Children[0]
	if b.Path != "a/b" || b.Size != 30 || b.FileCount != 2 {
		t.Fatalf("unexpected nested dir %+v", b)
	}
	if tree.Children[1].Name != "top.txt" {
		t.Fatalf("directories should sort before files")
	}
}

func TestRenderTree(t *testing.T) {
	entries := []Entry{
		{Path: "a/one.txt", Size: 2048},
		{Path: "b.txt", Size: 10},
	}
	c, err := Scan("root", entries, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := strings.Join([]string{
		"root (2 files, 2 KB)",
		"├── a/ (1 file, 2 KB)",
		"│   └── one.txt (2 KB)",
		"└── b.txt (10 B)",
		"",
	}, "\n")
	if got := RenderTree(c.Tree()); got != want {
		t.Fatalf("RenderTree mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		0:       "0 B",
		512:     "512 B",
		1024:    "1 KB",
		1536:    "1.5 KB",
		1048576: "1 MB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
