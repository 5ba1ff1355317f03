package classifier

import (
	"regexp"
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
)

var (
	// FileNamePattern matches file-name-like tokens in free text.
	FileNamePattern = regexp.MustCompile(`(?i)\b\w+\.(js|ts|py|java|cpp|c|h|css|html|json|xml|yml|yaml|md|go)\b`)
	// MentionPattern matches @handle tokens.
	MentionPattern = regexp.MustCompile(`@(\w+)`)
	datePattern    = regexp.MustCompile(`(?i)(yesterday|today|last week|last month|\d{4}-\d{2}-\d{2})`)
)

// ExtractFilters scans the question for file names, mentions and date hints.
func ExtractFilters(question string) chatmodel.Filters {
	var f chatmodel.Filters
	f.FileNames = dedupe(FileNamePattern.FindAllString(question, -1))
	for _, m := range MentionPattern.FindAllStringSubmatch(question, -1) {
		f.Mentions = append(f.Mentions, m[1])
	}
	f.Mentions = dedupe(f.Mentions)
	f.Dates = dedupe(datePattern.FindAllString(question, -1))
	return f
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
