package classifier

import (
	"math"
	"regexp"
	"unicode/utf8"

	"github.com/livereview/prchat/internal/chatmodel"
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// categoryPatterns has an entry for every category except general.
var categoryPatterns = map[chatmodel.Category][]*regexp.Regexp{
	chatmodel.CategorySummary: compileAll(
		`what.*(is|about|does).*pr`,
		`summarize.*pr`,
		`overview.*pr`,
		`tell me about.*pr`,
		`what.*pr.*do`,
		`explain`,
		`describe`,
		`tell.*about`,
		`what.*this`,
	),
	chatmodel.CategoryCodeAnalysis: compileAll(
		`show.*code`,
		`what.*changed`,
		`diff.*file`,
		`code.*review`,
		`implementation`,
		`show.*function`,
		`class.*method`,
		`improve`,
		`better`,
		`enhance`,
		`fix`,
		`optimize`,
		`refactor`,
		`areas.*improve`,
		`where.*improve`,
		`make.*plan`,
		`plan.*improve`,
	),
	chatmodel.CategoryReviewFeedback: compileAll(
		`review.*comment`,
		`what.*reviewer`,
		`feedback`,
		`comment.*pr`,
		`review.*say`,
		`approval`,
	),
	chatmodel.CategorySecurity: compileAll(
		`security.*issue`,
		`vulnerabilit`,
		`security.*concern`,
		`auth.*problem`,
		`secure`,
	),
	chatmodel.CategoryPerformance: compileAll(
		`performance.*issue`,
		`slow`,
		`optimization`,
		`memory.*leak`,
		`performance.*concern`,
	),
	chatmodel.CategoryTimeline: compileAll(
		`when.*created`,
		`when.*merged`,
		`timeline`,
		`date`,
		`history`,
	),
	chatmodel.CategoryFileListing: compileAll(
		`files.*changed`,
		`what.*files`,
		`file.*modified`,
		`added.*files`,
		`deleted.*files`,
	),
	chatmodel.CategoryTestGuidance: compileAll(
		`test.*recommendation`,
		`test.*coverage`,
		`unit.*test`,
		`test.*case`,
		`testing`,
	),
}

// PatternScorer scores every category by its best matching pattern:
// min(1, matchLength/questionLength + 0.3).
type PatternScorer struct {
	patterns map[chatmodel.Category][]*regexp.Regexp
}

func NewPatternScorer() *PatternScorer {
	return &PatternScorer{patterns: categoryPatterns}
}

func (*PatternScorer) Name() string { return "patterns" }

func (s *PatternScorer) Score(question string, _ []chatmodel.Message) (Result, bool) {
	scores := s.Scores(question)
	best := Result{}
	found := false
	for _, c := range chatmodel.AllCategories {
		score, ok := scores[c]
		if !ok {
			continue
		}
		if !found || score > best.Confidence {
			best = Result{Category: c, Confidence: score, Rule: "pattern"}
			found = true
		}
	}
	if !found || best.Confidence < MinConfidence {
		return Result{Category: chatmodel.CategoryGeneral, Confidence: GeneralConfidence, Rule: "pattern_fallback"}, true
	}
	return best, true
}

// Scores returns the best pattern score per matched category.
func (s *PatternScorer) Scores(question string) map[chatmodel.Category]float64 {
	scores := make(map[chatmodel.Category]float64)
	qlen := utf8.RuneCountInString(question)
	if qlen == 0 {
		return scores
	}
	for category, patterns := range s.patterns {
		best := 0.0
		matched := false
		for _, p := range patterns {
			m := p.FindString(question)
			if m == "" {
				continue
			}
			matched = true
			conf := math.Min(1.0, float64(utf8.RuneCountInString(m))/float64(qlen)+0.3)
			if conf > best {
				best = conf
			}
		}
		if matched {
			scores[category] = best
		}
	}
	return scores
}
