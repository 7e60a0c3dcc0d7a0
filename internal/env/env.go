// Package env composes the environment handed to managed processes.
package env

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds the global variables layered on top of the OS environment.
// The With* methods return modified copies.
type Env struct {
	vars  Var
	useOS bool
}

func New() Env { return Env{vars: make(Var), useOS: true} }

// WithSet returns a copy with K=V set.
func (e Env) WithSet(k, v string) Env {
	out := e.clone()
	if k != "" {
		out.vars[k] = v
	}
	return out
}

// WithVars returns a copy with every entry of vars set.
func (e Env) WithVars(vars map[string]string) Env {
	out := e.clone()
	for k, v := range vars {
		if k != "" {
			out.vars[k] = v
		}
	}
	return out
}

// WithOS controls whether Merge starts from os.Environ.
func (e Env) WithOS(use bool) Env {
	out := e.clone()
	out.useOS = use
	return out
}

// WithFile returns a copy with the KEY=VALUE lines of path applied.
func (e Env) WithFile(path string) (Env, error) {
	vars, err := LoadFile(path)
	if err != nil {
		return e, err
	}
	return e.WithVars(vars), nil
}

func (e Env) clone() Env {
	out := Env{vars: make(Var, len(e.vars)), useOS: e.useOS}
	for k, v := range e.vars {
		out.vars[k] = v
	}
	return out
}

// Merge composes the final environment list in this order: the OS
// environment (when enabled), the global variables, then perUnit "K=V"
// overrides. ${VAR} references are expanded against the composed map; unknown
// references are left untouched. The result is sorted by key.
func (e Env) Merge(perUnit []string) []string {
	m := make(Var)
	if e.useOS {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				m[k] = v
			}
		}
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for _, kv := range perUnit {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+Expand(m[k], m))
	}
	return out
}

var refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand replaces ${VAR} with its value from m. One pass, no recursion.
func Expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := m[ref[2:len(ref)-1]]; ok {
			return v
		}
		return ref
	})
}

// LoadFile parses a dotenv style file: KEY=VALUE lines, '#' comments,
// optional "export " prefix and optional surrounding quotes.
func LoadFile(path string) (map[string]string, error) {
	// #nosec G304 -- path comes from the configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	vars := make(map[string]string)
	s := bufio.NewScanner(f)
	n := 0
	for s.Scan() {
		n++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%s:%d: expected KEY=VALUE", path, n)
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' && v[len(v)-1] == '"' || v[0] == '\'' && v[len(v)-1] == '\'') {
			v = v[1 : len(v)-1]
		}
		vars[k] = v
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}
