package preproc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/mitchellh/go-homedir"
)

var (
	ErrIncludeCycle = errors.New("include cycle")
	ErrDirective    = errors.New("malformed directive")
)

// Opener opens an included file. The default reads from the filesystem.
type Opener func(path string) (io.ReadCloser, error)

type Option func(*Reader)

// WithMacro seeds the macro table before the first line is read.
func WithMacro(name, value string) Option {
	return func(r *Reader) { r.macros[name] = value }
}

func WithMacros(m map[string]string) Option {
	return func(r *Reader) {
		for k, v := range m {
			r.macros[k] = v
		}
	}
}

func WithOpener(open Opener) Option {
	return func(r *Reader) { r.open = open }
}

type source struct {
	name   string
	sc     *bufio.Scanner
	line   int
	closer io.Closer
}

// Reader turns source text into logical lines. Comments start at ';', a
// trailing '\' joins the next physical line, and every remaining line is run
// as a text/template with the macro table as data.
type Reader struct {
	stack   []*source
	open    Opener
	macros  map[string]string
	funcs   template.FuncMap
	posName string
	posLine int
}

// New reads name from r. Included paths are resolved relative to name.
func New(name string, r io.Reader, opts ...Option) *Reader {
	rd := newReader(opts)
	rd.push(name, io.NopCloser(r))
	return rd
}

func newReader(opts []Option) *Reader {
	rd := &Reader{
		open:   defaultOpen,
		macros: make(map[string]string),
		funcs:  sprig.TxtFuncMap(),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Open expands ~ in path and reads the file it names.
func Open(path string, opts ...Option) (*Reader, error) {
	full, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	rd := newReader(opts)
	rd.push(full, f)
	return rd, nil
}

func defaultOpen(path string) (io.ReadCloser, error) { return os.Open(path) }

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return sc
}

func (r *Reader) push(name string, rc io.ReadCloser) {
	r.stack = append(r.stack, &source{name: name, sc: newScanner(rc), closer: rc})
}

func (r *Reader) pop() {
	top := r.stack[len(r.stack)-1]
	if top.closer != nil {
		_ = top.closer.Close()
	}
	r.stack = r.stack[:len(r.stack)-1]
}

// Close releases every open source.
func (r *Reader) Close() error {
	for len(r.stack) > 0 {
		r.pop()
	}
	return nil
}

// Position names the file and first physical line of the last logical line.
func (r *Reader) Position() (string, int) { return r.posName, r.posLine }

// Macros returns a copy of the macro table.
func (r *Reader) Macros() map[string]string {
	out := make(map[string]string, len(r.macros))
	for k, v := range r.macros {
		out[k] = v
	}
	return out
}

// physical returns the next continuation-joined, comment-stripped line of the
// innermost source, popping finished includes. commentOnly reports a line
// that held nothing but a comment.
func (r *Reader) physical() (text string, commentOnly bool, err error) {
	for len(r.stack) > 0 {
		top := r.stack[len(r.stack)-1]
		var b strings.Builder
		started := false
		hadComment := false
		for top.sc.Scan() {
			top.line++
			if !started {
				r.posName, r.posLine = top.name, top.line
				started = true
			}
			part := top.sc.Text()
			if i := strings.IndexByte(part, ';'); i >= 0 {
				part = part[:i]
				hadComment = true
			}
			trimmed := strings.TrimRight(part, " \t\r")
			if strings.HasSuffix(trimmed, "\\") {
				b.WriteString(strings.TrimSuffix(trimmed, "\\"))
				b.WriteByte(' ')
				continue
			}
			b.WriteString(part)
			break
		}
		if err := top.sc.Err(); err != nil {
			return "", false, fmt.Errorf("%s:%d: %w", top.name, top.line, err)
		}
		if !started {
			if len(r.stack) == 1 {
				return "", false, io.EOF
			}
			r.pop()
			continue
		}
		line := strings.TrimRight(b.String(), " \t\r")
		return line, hadComment && strings.TrimSpace(line) == "", nil
	}
	return "", false, io.EOF
}

// ReadLine returns the next logical line. Blank lines are returned as "" so
// the caller can give them meaning; comment-only lines are dropped. The
// macro and include directives are consumed here.
func (r *Reader) ReadLine() (string, error) {
	for {
		text, commentOnly, err := r.physical()
		if err != nil {
			return "", err
		}
		if commentOnly {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			return "", nil
		}
		switch fields[0] {
		case "macro":
			if len(fields) < 2 {
				return "", r.errorf("%w: macro needs a name", ErrDirective)
			}
			rest := strings.TrimPrefix(strings.TrimSpace(text), "macro")
			rest = strings.TrimPrefix(strings.TrimSpace(rest), fields[1])
			value, err := r.expand(strings.TrimSpace(rest))
			if err != nil {
				return "", err
			}
			r.macros[fields[1]] = value
			continue
		case "include":
			if len(fields) != 2 {
				return "", r.errorf("%w: include takes one path", ErrDirective)
			}
			path, err := r.expand(fields[1])
			if err != nil {
				return "", err
			}
			if err := r.include(path); err != nil {
				return "", err
			}
			continue
		}
		return r.expand(text)
	}
}

func (r *Reader) include(path string) error {
	full, err := homedir.Expand(path)
	if err != nil {
		return r.errorf("expand %s: %w", path, err)
	}
	if !filepath.IsAbs(full) {
		full = filepath.Join(filepath.Dir(r.stack[len(r.stack)-1].name), full)
	}
	full = filepath.Clean(full)
	for _, s := range r.stack {
		if filepath.Clean(s.name) == full {
			return r.errorf("%w: %s", ErrIncludeCycle, full)
		}
	}
	rc, err := r.open(full)
	if err != nil {
		return r.errorf("include %s: %w", path, err)
	}
	r.push(full, rc)
	return nil
}

func (r *Reader) expand(text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New(r.posName).Funcs(r.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", r.errorf("template: %w", err)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, r.macros); err != nil {
		return "", r.errorf("template: %w", err)
	}
	return out.String(), nil
}

func (r *Reader) errorf(format string, args ...any) error {
	return fmt.Errorf("%s:%d: "+format, append([]any{r.posName, r.posLine}, args...)...)
}
