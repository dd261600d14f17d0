package resource

import (
	"fmt"
	"slices"
	"strings"
)

// AllMark is the mark carried by the "all known keys" list.
const AllMark = "all"

const allSymbol = "@cached-map-resource/all"

// Key addresses one entry, an ordered list of entries, or a symbolic alias
// of a map resource. The zero Key addresses nothing.
type Key[K comparable] struct {
	keys   []K
	list   bool
	mark   string
	symbol string
}

// One returns a single key.
func One[K comparable](key K) Key[K] {
	return Key[K]{keys: []K{key}}
}

// List returns a key list.
func List[K comparable](keys ...K) Key[K] {
	return Key[K]{keys: slices.Clone(keys), list: true}
}

// MarkedList returns a key list tagged with mark. Lists with different marks
// never include each other even when they share elements.
func MarkedList[K comparable](mark string, keys ...K) Key[K] {
	return Key[K]{keys: slices.Clone(keys), list: true, mark: mark}
}

// Symbol returns a symbolic key. It holds no entries and only matches
// symbolic keys with the same name, which makes it a natural alias pattern.
func Symbol[K comparable](name string) Key[K] {
	return Key[K]{symbol: name}
}

// AllKey is the built-in alias of every map resource; it resolves to the
// keys currently held by the resource.
func AllKey[K comparable]() Key[K] {
	return Key[K]{list: true, mark: AllMark, symbol: allSymbol}
}

// IsList reports whether k is a key list.
func (k Key[K]) IsList() bool { return k.list }

// IsSymbol reports whether k is a symbolic key.
func (k Key[K]) IsSymbol() bool { return k.symbol != "" }

// Mark returns the list mark, if any.
func (k Key[K]) Mark() string { return k.mark }

// Len returns the number of entries addressed by k.
func (k Key[K]) Len() int { return len(k.keys) }

// Keys returns a copy of the addressed entries.
func (k Key[K]) Keys() []K { return slices.Clone(k.keys) }

// IsZero reports whether k addresses nothing at all.
func (k Key[K]) IsZero() bool {
	return len(k.keys) == 0 && !k.list && k.symbol == ""
}

// First returns the first addressed entry.
func (k Key[K]) First() (K, bool) {
	if len(k.keys) == 0 {
		var zero K
		return zero, false
	}
	return k.keys[0], true
}

// Includes reports whether k and other address a common entry. Symbolic keys
// only match the same symbol; lists with different non-empty marks never match.
func (k Key[K]) Includes(other Key[K]) bool {
	if k.symbol != "" || other.symbol != "" {
		return k.symbol == other.symbol
	}
	if k.list && other.list && k.mark != "" && other.mark != "" && k.mark != other.mark {
		return false
	}
	for _, key := range k.keys {
		if slices.Contains(other.keys, key) {
			return true
		}
	}
	return false
}

// ForEach calls fn for every entry. i is the position in the list, or -1
// for a single key.
func (k Key[K]) ForEach(fn func(key K, i int)) {
	if !k.list {
		for _, key := range k.keys {
			fn(key, -1)
		}
		return
	}
	for i, key := range k.keys {
		fn(key, i)
	}
}

// Every reports whether fn holds for all entries. It is true for an empty key.
func (k Key[K]) Every(fn func(K) bool) bool {
	for _, key := range k.keys {
		if !fn(key) {
			return false
		}
	}
	return true
}

// Some reports whether fn holds for any entry.
func (k Key[K]) Some(fn func(K) bool) bool {
	for _, key := range k.keys {
		if fn(key) {
			return true
		}
	}
	return false
}

// Join merges the entries of keys into one unmarked list without duplicates.
func Join[K comparable](keys ...Key[K]) Key[K] {
	out := Key[K]{list: true}
	for _, key := range keys {
		for _, k := range key.keys {
			if !slices.Contains(out.keys, k) {
				out.keys = append(out.keys, k)
			}
		}
	}
	return out
}

func (k Key[K]) String() string {
	if k.symbol != "" {
		return "symbol(" + k.symbol + ")"
	}
	if !k.list {
		if len(k.keys) == 0 {
			return "<none>"
		}
		return fmt.Sprint(k.keys[0])
	}
	parts := make([]string, len(k.keys))
	for i, key := range k.keys {
		parts[i] = fmt.Sprint(key)
	}
	s := "[" + strings.Join(parts, ", ") + "]"
	if k.mark != "" {
		s = k.mark + s
	}
	return s
}
