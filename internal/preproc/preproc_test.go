package preproc

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		out = append(out, line)
	}
}

func memOpener(files map[string]string) Opener {
	return func(path string) (io.ReadCloser, error) {
		text, ok := files[filepath.ToSlash(path)]
		if !ok {
			return nil, os.ErrNotExist
		}
		return io.NopCloser(strings.NewReader(text)), nil
	}
}

func TestCommentsAndContinuations(t *testing.T) {
	src := "; header comment\n" +
		"TRACKSEQ 1 2 ; trailing\n" +
		"tag title \\\n" +
		"  long name\n" +
		"\n" +
		"   ; indented comment\n" +
		"sequence"
	got := readAll(t, New("song.seq", strings.NewReader(src)))
	want := []string{"TRACKSEQ 1 2", "tag title    long name", "", "sequence"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestPositionTracksFirstPhysicalLine(t *testing.T) {
	r := New("song.seq", strings.NewReader("; c\n\na \\\nb\nc"))
	if _, err := r.ReadLine(); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if name, line := r.Position(); name != "song.seq" || line != 2 {
		t.Fatalf("expected song.seq:2, got %s:%d", name, line)
	}
	if _, err := r.ReadLine(); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if _, line := r.Position(); line != 3 {
		t.Fatalf("expected joined line to start at 3, got %d", line)
	}
	if _, err := r.ReadLine(); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if _, line := r.Position(); line != 5 {
		t.Fatalf("expected line 5, got %d", line)
	}
}

func TestMacrosAndExpressions(t *testing.T) {
	src := "macro BEAT 125\n" +
		"macro BAR {{ mul 4 (atoi .BEAT) }}\n" +
		"{{ .BEAT }} | {{ .BAR }} | {{ add 1 2 }}\n" +
		"{{ .EXT }}"
	r := New("m.seq", strings.NewReader(src), WithMacro("EXT", "outside"))
	got := readAll(t, r)
	if len(got) != 2 {
		t.Fatalf("expected 2 lines, got %q", got)
	}
	if got[0] != "125 | 500 | 3" {
		t.Fatalf("expected expanded line, got %q", got[0])
	}
	if got[1] != "outside" {
		t.Fatalf("expected external macro, got %q", got[1])
	}
	if r.Macros()["BAR"] != "500" {
		t.Fatalf("expected BAR=500, got %q", r.Macros()["BAR"])
	}
}

func TestUnknownMacroFails(t *testing.T) {
	r := New("m.seq", strings.NewReader("\n{{ .NOPE }}"))
	if _, err := r.ReadLine(); err != nil {
		t.Fatalf("blank line should read cleanly: %v", err)
	}
	_, err := r.ReadLine()
	if err == nil || !strings.Contains(err.Error(), "m.seq:2") {
		t.Fatalf("expected positioned template error, got %v", err)
	}
}

func TestIncludeSplicesRelativeFile(t *testing.T) {
	files := map[string]string{
		"songs/parts/drums.inc": "macro KICK 7\nbuffer silence 10",
	}
	src := "a\ninclude parts/drums.inc\nb {{ .KICK }}"
	r := New("songs/main.seq", strings.NewReader(src), WithOpener(memOpener(files)))
	got := readAll(t, r)
	want := []string{"a", "buffer silence 10", "b 7"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestIncludeCycleDetected(t *testing.T) {
	files := map[string]string{
		"a.inc": "include b.inc",
		"b.inc": "include a.inc",
	}
	r := New("main.seq", strings.NewReader("include a.inc"), WithOpener(memOpener(files)))
	_, err := r.ReadLine()
	if !errors.Is(err, ErrIncludeCycle) {
		t.Fatalf("expected ErrIncludeCycle, got %v", err)
	}
}

func TestDirectiveErrors(t *testing.T) {
	for _, src := range []string{"macro", "include", "include a b"} {
		_, err := New("d.seq", strings.NewReader(src)).ReadLine()
		if !errors.Is(err, ErrDirective) {
			t.Fatalf("%q: expected ErrDirective, got %v", src, err)
		}
	}
}

func TestOpenReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.seq")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer r.Close()
	got := readAll(t, r)
	if len(got) != 2 || got[1] != "two" {
		t.Fatalf("expected [one two], got %q", got)
	}
}
