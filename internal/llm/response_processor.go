package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/livereview/prchat/internal/retry"
	"github.com/livereview/prchat/internal/textutil"
)

// ProcessorResult describes how a raw reply was turned into JSON.
type ProcessorResult struct {
	RepairStats  RepairStats `json:"repair_stats"`
	OriginalText string      `json:"-"`
	RepairedJSON string      `json:"-"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
}

// ProcessLLMResponse extracts the JSON object from a reply (models sometimes
// wrap it in prose or a code fence), repairs it when needed and decodes it
// into target. logger may be nil.
func ProcessLLMResponse(raw string, target interface{}, logger retry.Logger) (ProcessorResult, error) {
	logf := func(format string, args ...interface{}) {
		if logger != nil {
			logger.Log(format, args...)
		}
	}
	result := ProcessorResult{OriginalText: raw}
	logf("Processing model reply (%d bytes)", len(raw))

	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		result.Error = "no JSON found in model reply"
		logf("No JSON found in model reply: %s", textutil.Truncate(raw, 200, "..."))
		return result, fmt.Errorf("%w: no JSON found", ErrInvalidReply)
	}

	repaired, stats, err := RepairJSON(jsonStr)
	result.RepairStats = stats
	result.RepairedJSON = repaired
	if stats.WasRepaired {
		logf("JSON repair applied: %s (%d errors fixed, %d comments lost, %v)",
			strings.Join(stats.Strategies, ", "), stats.ErrorsFixed, stats.CommentsLost, stats.RepairTime)
	}
	if err != nil {
		result.Error = err.Error()
		logf("JSON repair failed: %v", err)
		return result, err
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		result.Error = fmt.Sprintf("JSON decoding failed after repair: %v", err)
		logf("JSON decoding failed after repair: %v", err)
		return result, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}

	result.Success = true
	return result, nil
}

// ExtractJSON returns the first balanced JSON object or array in raw, the
// body of a ``` fence, or "" when there is none. An unbalanced tail is
// returned as is for RepairJSON to complete.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "```") {
		if fenced := fencedBlock(raw); fenced != "" {
			raw = fenced
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return raw[start:]
}

func fencedBlock(raw string) string {
	var lines []string
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inBlock {
				break
			}
			inBlock = true
			continue
		}
		if inBlock {
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
