// Command sqllint verifies that every SQL string constant carries the
// --sql <uuid> audit marker the query runner logs, and that no two queries
// share a marker.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	markerPattern     = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

type site struct {
	file string
	line int
	name string
}

type linter struct {
	violations []string
	markers    map[string][]site
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	l := &linter{markers: map[string][]site{}}
	for _, target := range targets {
		if err := l.lintTarget(target); err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
	}
	l.reportDuplicates()

	if len(l.violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL audit marker violations")
		for _, v := range l.violations {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		os.Exit(1)
	}
}

func (l *linter) lintTarget(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if filepath.Ext(target) == ".go" {
			return l.lintFile(target)
		}
		return nil
	}
	return filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		return l.lintFile(path)
	})
}

// skipDir mirrors the directories the go tool itself ignores.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
		name == "vendor" || name == "node_modules" || name == "testdata"
}

// lintFile inspects const and var string declarations only. Queries built at
// runtime are the caller's problem; the audit convention covers the inline
// statements the repositories declare.
func (l *linter) lintFile(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			raw, err := unquote(lit.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			pos := fset.Position(lit.Pos())
			at := site{file: path, line: pos.Line, name: joinNames(spec.Names)}
			m := markerPattern.FindStringSubmatch(firstLine(raw))
			if m == nil {
				l.violations = append(l.violations,
					fmt.Sprintf("%s:%d missing or invalid --sql <uuid> marker (%s)", at.file, at.line, at.name))
				continue
			}
			l.markers[m[1]] = append(l.markers[m[1]], at)
		}
		return true
	})
	return nil
}

// reportDuplicates flags marker uuids declared by more than one query. A
// marker names exactly one statement in the runner's logs.
func (l *linter) reportDuplicates() {
	var dup []string
	for uuid, sites := range l.markers {
		if len(sites) > 1 {
			dup = append(dup, uuid)
		}
	}
	sort.Strings(dup)
	for _, uuid := range dup {
		for _, at := range l.markers[uuid] {
			l.violations = append(l.violations,
				fmt.Sprintf("%s:%d duplicate --sql marker %s (%s)", at.file, at.line, uuid, at.name))
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
