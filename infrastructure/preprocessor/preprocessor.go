// Package preprocessor expands the C-style directives scripts may use before
// they reach the engine: #include, #pragma and #define conditionals.
//
// Directive lines are replaced by blank lines so that line numbers of the
// main file survive preprocessing. Lines starting with '#' that are not a
// known directive pass through untouched.
package preprocessor

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/ports"
)

var _ ports.Preprocessor = (*Preprocessor)(nil)

// DefaultMaxIncludeDepth bounds nested includes.
const DefaultMaxIncludeDepth = 32

// Error reports a directive problem at a source position.
type Error struct {
	Err  error
	File string
	Line int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type preprocessorConfig struct {
	defines         []string
	maxIncludeDepth int
}

func defaultPreprocessorConfig() preprocessorConfig {
	return preprocessorConfig{maxIncludeDepth: DefaultMaxIncludeDepth}
}

// Option configures a Preprocessor.
type Option func(*preprocessorConfig)

// WithDefines predefines symbols for #ifdef.
func WithDefines(symbols ...string) Option {
	return func(c *preprocessorConfig) {
		c.defines = append(c.defines, symbols...)
	}
}

// WithMaxIncludeDepth bounds nested includes.
func WithMaxIncludeDepth(n int) Option {
	return func(c *preprocessorConfig) {
		if n > 0 {
			c.maxIncludeDepth = n
		}
	}
}

// Preprocessor reads sources from an fs.FS rooted at the scripts directory.
// It is safe for concurrent use; each call keeps its own state.
type Preprocessor struct {
	fsys   fs.FS
	config preprocessorConfig
}

// New creates a Preprocessor over fsys.
func New(fsys fs.FS, opts ...Option) *Preprocessor {
	cfg := defaultPreprocessorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Preprocessor{fsys: fsys, config: cfg}
}

// Preprocess implements ports.Preprocessor. Dependencies lists every
// included file once, in first-inclusion order, as a path relative to the
// scripts root. The main file is not a dependency.
func (p *Preprocessor) Preprocess(name string, source []byte, onPragma ports.PragmaCallback) (*ports.PreprocessResult, error) {
	name = path.Clean(name)
	if source == nil {
		data, err := fs.ReadFile(p.fsys, name)
		if err != nil {
			return nil, err
		}
		source = data
	}

	run := &run{
		p:        p,
		onPragma: onPragma,
		defines:  make(map[string]bool, len(p.config.defines)),
		included: map[string]bool{name: true},
	}
	for _, d := range p.config.defines {
		run.defines[d] = true
	}

	if err := run.file(name, source, 0); err != nil {
		return nil, err
	}
	return &ports.PreprocessResult{
		Source:       run.out.String(),
		Dependencies: run.deps,
		Pragmas:      run.pragmas,
	}, nil
}

type cond struct {
	active   bool // lines in this branch are emitted
	parent   bool // enclosing branch is active
	sawElse  bool
	openLine int
}

type run struct {
	p        *Preprocessor
	onPragma ports.PragmaCallback
	defines  map[string]bool
	included map[string]bool
	deps     []string
	pragmas  []entities.PragmaInvocation
	out      strings.Builder
}

func (r *run) file(name string, src []byte, depth int) error {
	var stack []cond
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		directive, arg, ok := parseDirective(text)
		if !ok {
			if active() {
				r.out.WriteString(text)
			}
			r.out.WriteByte('\n')
			continue
		}

		fail := func(format string, args ...any) error {
			return &Error{File: name, Line: line, Err: fmt.Errorf(format, args...)}
		}

		switch directive {
		case "ifdef", "ifndef":
			sym := firstWord(arg)
			if sym == "" {
				return fail("#%s requires a symbol", directive)
			}
			parent := active()
			want := r.defines[sym]
			if directive == "ifndef" {
				want = !want
			}
			stack = append(stack, cond{active: parent && want, parent: parent, openLine: line})
		case "else":
			if len(stack) == 0 {
				return fail("#else without #ifdef")
			}
			top := &stack[len(stack)-1]
			if top.sawElse {
				return fail("duplicate #else")
			}
			top.sawElse = true
			top.active = top.parent && !top.active
		case "endif":
			if len(stack) == 0 {
				return fail("#endif without #ifdef")
			}
			stack = stack[:len(stack)-1]
		case "define", "undef":
			if !active() {
				break
			}
			sym := firstWord(arg)
			if sym == "" {
				return fail("#%s requires a symbol", directive)
			}
			r.defines[sym] = directive == "define"
		case "include":
			if !active() {
				break
			}
			target, err := strconv.Unquote(strings.TrimSpace(arg))
			if err != nil || target == "" {
				return fail("malformed #include %s", arg)
			}
			if depth+1 > r.p.config.maxIncludeDepth {
				return fail("include depth exceeds %d", r.p.config.maxIncludeDepth)
			}
			resolved, data, err := r.resolve(name, target)
			if err != nil {
				return fail("#include %q: %w", target, err)
			}
			if r.included[resolved] {
				break
			}
			r.included[resolved] = true
			r.deps = append(r.deps, resolved)
			if err := r.file(resolved, data, depth+1); err != nil {
				return err
			}
			// The directive's own line stays blank below; the included
			// text has already been written.
		case "pragma":
			if !active() {
				break
			}
			tag, text := splitPragma(arg)
			if tag == "" {
				return fail("#pragma requires a tag")
			}
			if r.onPragma != nil {
				if err := r.onPragma(tag, text); err != nil {
					return fail("#pragma %s: %w", tag, err)
				}
			}
			r.pragmas = append(r.pragmas, entities.PragmaInvocation{Tag: tag, Text: text})
		}
		r.out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return &Error{File: name, Line: line, Err: err}
	}
	if len(stack) > 0 {
		return &Error{File: name, Line: stack[len(stack)-1].openLine, Err: fmt.Errorf("unterminated conditional")}
	}
	return nil
}

// resolve looks an include up next to the including file, then at the root.
func (r *run) resolve(from, target string) (string, []byte, error) {
	candidates := []string{path.Join(path.Dir(from), target)}
	if root := path.Clean(target); root != candidates[0] {
		candidates = append(candidates, root)
	}
	var firstErr error
	for _, c := range candidates {
		if !fs.ValidPath(c) {
			continue
		}
		data, err := fs.ReadFile(r.p.fsys, c)
		if err == nil {
			return c, data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("path escapes scripts directory")
	}
	return "", nil, firstErr
}

var directives = map[string]bool{
	"include": true, "pragma": true, "define": true, "undef": true,
	"ifdef": true, "ifndef": true, "else": true, "endif": true,
}

func parseDirective(line string) (directive, arg string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	rest := strings.TrimLeft(trimmed[1:], " \t")
	word := firstWord(rest)
	if !directives[word] {
		return "", "", false
	}
	return word, strings.TrimSpace(rest[len(word):]), true
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// splitPragma separates the tag from its text. A quoted text is unquoted.
func splitPragma(arg string) (tag, text string) {
	tag = firstWord(arg)
	text = strings.TrimSpace(arg[len(tag):])
	if len(text) >= 2 && text[0] == '"' {
		if unquoted, err := strconv.Unquote(text); err == nil {
			text = unquoted
		}
	}
	return tag, text
}
