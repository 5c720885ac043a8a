package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Hook id grammar:
//
//	id      = path "/" namespace ( "#" index | ":" key ) [ "~" n ]
//	path    = segment { "." segment }
//	segment = name ( "#" index | ":" key ) [ "~" n ]
//
// A segment is contributed by every component, intrinsic element, and
// fragment (whose name is empty). Unkeyed segments are numbered per name
// among the children of the same parent path; keyed segments carry the
// key prop instead, so they survive reordering. Hook indexes run per
// (component path, namespace). A repeated explicit key gets a "~n" suffix.
// Keys may hold any text: reserved delimiters and "%" are percent-encoded
// so the key survives unchanged into the id.
const reservedDelimiters = "./:#~"

// escapeKey percent-encodes the reserved delimiters and "%" in key.
func escapeKey(key string) string {
	if !strings.ContainsAny(key, reservedDelimiters+"%") {
		return key
	}
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '%' || strings.IndexByte(reservedDelimiters, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// unescapeKey reverses escapeKey. It reports false for malformed escapes.
func unescapeKey(s string) (string, bool) {
	if !strings.Contains(s, "%") {
		return s, true
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", false
		}
		n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", false
		}
		b.WriteByte(byte(n))
		i += 2
	}
	return b.String(), true
}

func hasDelimiter(s string) bool {
	return strings.ContainsAny(s, reservedDelimiters)
}

func validateNamespace(ns string) error {
	if ns == "" || hasDelimiter(ns) {
		return &ValidationError{
			Code:    ErrCodeInvalidNamespace,
			Path:    ns,
			Message: "hook namespace must be non-empty and must not contain any of " + reservedDelimiters,
		}
	}
	return nil
}

func validateName(kind, name, parent string) error {
	if hasDelimiter(name) {
		return &ValidationError{
			Code:    ErrCodeInvalidName,
			Path:    parent,
			Message: kind + " " + strconv.Quote(name) + " must not contain any of " + reservedDelimiters,
		}
	}
	return nil
}

// identity allocates path segments and hook ids for one render pass.
type identity struct {
	logger *slog.Logger

	// segments counts unkeyed segment names per parent path.
	segments map[string]map[string]int
	// hooks counts unkeyed hook ids per (path, namespace).
	hooks map[string]map[string]int
	// used records every id handed out, for collision suffixes.
	used map[string]int
}

func newIdentity(logger *slog.Logger) *identity {
	return &identity{
		logger:   logger,
		segments: make(map[string]map[string]int),
		hooks:    make(map[string]map[string]int),
		used:     make(map[string]int),
	}
}

// segment returns the full path of a child named name under parent.
func (g *identity) segment(parent, name, key string, keyed bool) (string, error) {
	if err := validateName("name", name, parent); err != nil {
		return "", err
	}
	var seg string
	if keyed {
		seg = name + ":" + escapeKey(key)
	} else {
		counts := g.segments[parent]
		if counts == nil {
			counts = make(map[string]int)
			g.segments[parent] = counts
		}
		seg = name + "#" + strconv.Itoa(counts[name])
		counts[name]++
	}
	path := seg
	if parent != "" {
		path = parent + "." + seg
	}
	return g.unique(path), nil
}

// hookID returns the id of the next hook registered at path. An empty key
// means the hook is index-based.
func (g *identity) hookID(path, namespace, key string) (string, error) {
	if err := validateNamespace(namespace); err != nil {
		return "", err
	}
	if key != "" {
		return g.unique(path + "/" + namespace + ":" + escapeKey(key)), nil
	}
	counts := g.hooks[path]
	if counts == nil {
		counts = make(map[string]int)
		g.hooks[path] = counts
	}
	id := path + "/" + namespace + "#" + strconv.Itoa(counts[namespace])
	counts[namespace]++
	return g.unique(id), nil
}

func (g *identity) unique(id string) string {
	n := g.used[id]
	g.used[id] = n + 1
	if n == 0 {
		return id
	}
	resolved := id + "~" + strconv.Itoa(n)
	g.logger.Warn("duplicate key in tree, disambiguating",
		"id", id,
		"resolved", resolved,
	)
	// The suffixed form is itself reserved so a later literal collision
	// cannot reuse it.
	g.used[resolved]++
	return resolved
}

// hookCounts returns the unkeyed hook counts registered at path.
func (g *identity) hookCounts(path string) map[string]int {
	return g.hooks[path]
}

// Namespace returns the namespace of a hook id, or "" when id does not
// follow the grammar.
func Namespace(id string) string {
	p, ok := parseHookID(id)
	if !ok {
		return ""
	}
	return p.Namespace
}

// parsedID is a decomposed hook id.
type parsedID struct {
	Path      string
	Namespace string
	Index     int // -1 for keyed ids
	Key       string
}

// parseHookID splits a hook id into its parts. It reports false for
// strings that do not follow the grammar.
func parseHookID(id string) (parsedID, bool) {
	slash := strings.LastIndexByte(id, '/')
	if slash <= 0 || slash == len(id)-1 {
		return parsedID{}, false
	}
	p := parsedID{Path: id[:slash], Index: -1}
	rest := id[slash+1:]
	if tilde := strings.IndexByte(rest, '~'); tilde >= 0 {
		rest = rest[:tilde]
	}
	if i := strings.IndexByte(rest, '#'); i > 0 {
		idx, err := strconv.Atoi(rest[i+1:])
		if err != nil || idx < 0 {
			return parsedID{}, false
		}
		p.Namespace, p.Index = rest[:i], idx
		return p, true
	}
	if i := strings.IndexByte(rest, ':'); i > 0 {
		key, ok := unescapeKey(rest[i+1:])
		if !ok {
			return parsedID{}, false
		}
		p.Namespace, p.Key = rest[:i], key
		return p, true
	}
	return parsedID{}, false
}
