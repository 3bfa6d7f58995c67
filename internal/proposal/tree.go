// Package proposal provides loose accessors over indexer proposal documents.
//
// Proposals arrive as schema-less JSON whose shape varies between indexer
// versions and DAO modules, so every accessor tries a list of candidate
// keys and reports absence instead of failing.
package proposal

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Tree is a decoded JSON object.
type Tree map[string]any

// Subunit groups the proposals fetched for one DAO or sub-DAO.
type Subunit struct {
	Name      string `json:"name" yaml:"name"`
	Address   string `json:"address" yaml:"address"`
	Proposals []Tree `json:"proposals" yaml:"proposals"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// messageKeys are tried in order for the proposal's message list.
var messageKeys = []string{"msgs", "messages", "actions"}

// AsTree converts a decoded JSON value into a Tree.
func AsTree(v any) (Tree, bool) {
	switch m := v.(type) {
	case Tree:
		return m, true
	case map[string]any:
		return Tree(m), true
	default:
		return nil, false
	}
}

// Has reports whether key is present.
func (t Tree) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Map returns the nested object under key.
func (t Tree) Map(key string) (Tree, bool) {
	v, ok := t[key]
	if !ok {
		return nil, false
	}
	return AsTree(v)
}

// List returns the array under key.
func (t Tree) List(key string) ([]any, bool) {
	v, ok := t[key].([]any)
	return v, ok
}

// String returns the first non-empty scalar among keys, rendered as text.
func (t Tree) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := Scalar(t[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

// Body returns the nested "proposal" object when the indexer wraps the
// proposal body, or the tree itself.
func (t Tree) Body() Tree {
	if body, ok := t.Map("proposal"); ok {
		return body
	}
	return t
}

// ID returns the proposal identifier.
func (t Tree) ID() string {
	if id := t.String("id", "proposal_id"); id != "" {
		return id
	}
	return t.Body().String("id", "proposal_id")
}

// Title returns the proposal title.
func (t Tree) Title() string {
	if title := t.Body().String("title"); title != "" {
		return title
	}
	if meta, ok := t.Map("metadata"); ok {
		return meta.String("title")
	}
	return t.String("title")
}

// Text joins title and description.
func (t Tree) Text() string {
	body := t.Body()
	return strings.TrimSpace(body.String("title") + "\n" + body.String("description"))
}

// Messages returns the proposal's message list, probing the body first.
func (t Tree) Messages() []any {
	for _, src := range []Tree{t.Body(), t} {
		for _, k := range messageKeys {
			if msgs, ok := src.List(k); ok {
				return msgs
			}
		}
	}
	return nil
}

// Scalar renders strings and JSON numbers as text.
func Scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

// Amount parses a non-negative base-unit integer. Strings must be all
// digits; fractional or negative values are rejected.
func Amount(v any) (*big.Int, bool) {
	s, ok := Scalar(v)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if !isDigits(s) {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	return n, ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Decode parses a JSON document into a Tree, keeping numbers exact.
func Decode(data []byte) (Tree, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	t, ok := AsTree(v)
	if !ok {
		return nil, fmt.Errorf("decode proposal: expected object, got %T", v)
	}
	return t, nil
}
