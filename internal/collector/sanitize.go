package collector

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/woozymasta/vitals/internal/models"
	"github.com/woozymasta/vitals/internal/serverid"
)

// fieldKind is the expected type of a known snapshot field.
type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindCount
	kindStringList
)

// field describes one known snapshot field, its type and value range.
// Values that cannot be coerced fall back to the zero value of the kind.
type field struct {
	name string
	kind fieldKind
	max  float64 // 0 means no upper bound
}

// schema lists every field the collector interprets. Anything else is passed through.
var schema = []field{
	{name: "server_id", kind: kindString},
	{name: "server_name", kind: kindString},
	{name: "last_update", kind: kindString},
	{name: "uptime", kind: kindNumber},
	{name: "memory_usage", kind: kindNumber, max: 100},
	{name: "player_count", kind: kindCount},
	{name: "bot_count", kind: kindCount},
	{name: "players", kind: kindStringList},
	{name: "bots", kind: kindStringList},
}

var known = func() map[string]struct{} {
	m := make(map[string]struct{}, len(schema))
	for _, f := range schema {
		m[f.name] = struct{}{}
	}
	return m
}()

// Sanitize coerces a raw document into a snapshot field by field.
// It never fails and is idempotent: Sanitize(Sanitize(d).Document()) equals Sanitize(d).
// An invalid server_id becomes serverid.Unknown.
func Sanitize(doc models.Document) models.Snapshot {
	s := models.Snapshot{Extra: make(map[string]any)}

	for _, f := range schema {
		v := doc[f.name]
		switch f.name {
		case "server_id":
			s.ServerID = toString(v)
			if !serverid.Valid(s.ServerID) {
				s.ServerID = serverid.Unknown
			}
		case "server_name":
			s.ServerName = toString(v)
		case "last_update":
			s.LastUpdate = toString(v)
		case "uptime":
			s.Uptime = clamp(toNumber(v), f.max)
		case "memory_usage":
			s.MemoryUsage = clamp(toNumber(v), f.max)
		case "player_count":
			s.PlayerCount = toCount(v)
		case "bot_count":
			s.BotCount = toCount(v)
		case "players":
			s.Players = toStringList(v)
		case "bots":
			s.Bots = toStringList(v)
		}
	}

	for k, v := range doc {
		if _, ok := known[k]; !ok {
			s.Extra[k] = v
		}
	}

	return s
}

// toNumber coerces JSON numbers and numeric strings; anything else is 0.
func toNumber(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return f
}

// toCount coerces to a non-negative integer. Fractional numbers are truncated,
// strings must hold an integer.
func toCount(v any) int {
	var n int
	switch c := v.(type) {
	case int:
		n = c
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return 0
		}
		n = parsed
	case json.Number:
		if parsed, err := c.Int64(); err == nil {
			n = int(parsed)
		} else {
			n = int(toNumber(c))
		}
	default:
		f := toNumber(v)
		if f > math.MaxInt32 {
			f = math.MaxInt32
		}
		n = int(f)
	}

	if n < 0 {
		return 0
	}

	return n
}

func clamp(f, max float64) float64 {
	if f < 0 {
		return 0
	}
	if max > 0 && f > max {
		return max
	}

	return f
}

// toString stringifies scalars; objects, lists and null become "".
func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// toStringList keeps non-null entries of a list as strings; non-lists become an empty list.
func toStringList(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			if s := toString(item); s != "" || isString(item) {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{}
	}
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
