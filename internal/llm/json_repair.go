package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats records what RepairJSON had to do to a reply.
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	CommentsLost  int           `json:"comments_lost"`
	ErrorsFixed   int           `json:"errors_fixed"`
	RepairTime    time.Duration `json:"repair_time"`
	Strategies    []string      `json:"repair_strategies"`
	WasRepaired   bool          `json:"was_repaired"`
}

type repairStrategy struct {
	name  string
	apply func(s string, stats *RepairStats) string
}

// Cheap structural fixes run first, each only outside string literals. The
// jsonrepair library is the last resort.
var repairStrategies = []repairStrategy{
	{name: "comments_removed", apply: func(s string, stats *RepairStats) string {
		out, n := removeComments(s)
		stats.CommentsLost += n
		return out
	}},
	{name: "trailing_commas", apply: func(s string, _ *RepairStats) string {
		return removeTrailingCommas(s)
	}},
	{name: "completion", apply: func(s string, _ *RepairStats) string {
		return completeJSON(s)
	}},
}

// RepairJSON returns raw unchanged when it is already valid JSON, otherwise
// the first repaired form that parses. The error wraps ErrInvalidReply.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}
	finish := func(s string) RepairStats {
		stats.RepairedBytes = len(s)
		stats.RepairTime = time.Since(start)
		return stats
	}

	if json.Valid([]byte(raw)) {
		return raw, finish(raw), nil
	}

	stats.WasRepaired = true
	repaired := raw
	for _, strategy := range repairStrategies {
		next := strategy.apply(repaired, &stats)
		if next == repaired {
			continue
		}
		repaired = next
		stats.Strategies = append(stats.Strategies, strategy.name)
		stats.ErrorsFixed++
		if json.Valid([]byte(repaired)) {
			return repaired, finish(repaired), nil
		}
	}

	libraryRepaired, err := jsonrepair.JSONRepair(repaired)
	if err == nil && json.Valid([]byte(libraryRepaired)) {
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		stats.ErrorsFixed++
		return libraryRepaired, finish(libraryRepaired), nil
	}

	return repaired, finish(repaired), fmt.Errorf("%w: json repair failed after %d strategies", ErrInvalidReply, len(stats.Strategies))
}

// removeComments strips // and /* */ comments that are not inside strings.
func removeComments(s string) (string, int) {
	var b strings.Builder
	b.Grow(len(s))
	removed := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				end := strings.IndexByte(s[i:], '\n')
				removed++
				if end < 0 {
					return b.String(), removed
				}
				i += end - 1
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				removed++
				if end < 0 {
					return b.String(), removed
				}
				i += end + 3
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String(), removed
}

// removeTrailingCommas drops a comma that is followed, after optional
// whitespace, by a closing brace or bracket.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

// completeJSON closes an unterminated string and any open objects or arrays
// in last-opened-first-closed order.
func completeJSON(s string) string {
	s = strings.TrimSpace(s)
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !inString && len(stack) == 0 {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
