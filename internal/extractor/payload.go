package extractor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

type coin struct {
	denom  string
	amount *big.Int
}

// parseCoins reads a [{denom, amount}] list. Entries whose amount is not a
// non-negative integer are dropped.
func parseCoins(v any) []coin {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]coin, 0, len(list))
	for _, item := range list {
		c, ok := proposal.AsTree(item)
		if !ok {
			continue
		}
		amount, ok := proposal.Amount(c["amount"])
		if !ok {
			continue
		}
		out = append(out, coin{denom: c.String("denom"), amount: amount})
	}
	return out
}

// decodePayload returns a contract message as an object. Objects pass
// through; strings are treated as base64(JSON). Anything undecodable
// becomes an empty object, with the cause returned for diagnostics. The
// raw JSON is returned when available so callers can recover key order.
func decodePayload(v any) (proposal.Tree, []byte, error) {
	switch m := v.(type) {
	case nil:
		return proposal.Tree{}, nil, nil
	case string:
		raw, err := decodeBase64(m)
		if err != nil {
			return proposal.Tree{}, nil, fmt.Errorf("%w: base64: %v", ErrPayloadDecode, err)
		}
		tree, err := proposal.Decode(raw)
		if err != nil {
			return proposal.Tree{}, nil, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
		}
		return tree, raw, nil
	default:
		if tree, ok := proposal.AsTree(v); ok {
			return tree, nil, nil
		}
		return proposal.Tree{}, nil, fmt.Errorf("%w: unexpected payload type %T", ErrPayloadDecode, v)
	}
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// methodName returns the first key of a contract message. When the raw
// JSON is available the key order is read from it; otherwise the lowest
// key is chosen so the result is stable.
func methodName(msg proposal.Tree, raw []byte) string {
	if len(raw) > 0 {
		if key, ok := firstKey(raw); ok {
			return key
		}
	}
	if len(msg) == 0 {
		return ""
	}
	keys := make([]string, 0, len(msg))
	for k := range msg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func firstKey(raw []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	return key, ok
}
