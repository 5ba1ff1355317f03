package chatmodel

// Category is the closed set of intents a question can be classified into.
type Category string

const (
	CategorySummary        Category = "summary"
	CategoryCodeAnalysis   Category = "code"
	CategoryReviewFeedback Category = "reviews"
	CategorySecurity       Category = "security"
	CategoryPerformance    Category = "performance"
	CategoryTimeline       Category = "timeline"
	CategoryFileListing    Category = "files"
	CategoryTestGuidance   Category = "tests"
	CategoryGeneral        Category = "general"
)

// AllCategories lists every category in declaration order. Classifier ties
// are broken by this order.
var AllCategories = []Category{
	CategorySummary,
	CategoryCodeAnalysis,
	CategoryReviewFeedback,
	CategorySecurity,
	CategoryPerformance,
	CategoryTimeline,
	CategoryFileListing,
	CategoryTestGuidance,
	CategoryGeneral,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory maps a stored label back to a Category, falling back to general.
func ParseCategory(s string) Category {
	c := Category(s)
	if c.Valid() {
		return c
	}
	return CategoryGeneral
}

// requiredContext is the fixed category -> context table.
var requiredContext = map[Category][]ContextKind{
	CategorySummary:        {ContextMetadata, ContextSummary},
	CategoryCodeAnalysis:   {ContextMetadata, ContextSummary, ContextFiles},
	CategoryReviewFeedback: {ContextReviews, ContextComments},
	CategorySecurity:       {ContextSummary, ContextFiles},
	CategoryPerformance:    {ContextSummary, ContextFiles},
	CategoryTimeline:       {ContextMetadata},
	CategoryFileListing:    {ContextFiles},
	CategoryTestGuidance:   {ContextSummary, ContextFiles},
	CategoryGeneral:        {ContextMetadata, ContextSummary},
}

// RequiredContext returns the context kinds a category needs. The result is a
// fresh slice; callers may modify it.
func (c Category) RequiredContext() []ContextKind {
	kinds, ok := requiredContext[c]
	if !ok {
		kinds = requiredContext[CategoryGeneral]
	}
	return append([]ContextKind(nil), kinds...)
}

// DerivedContext returns the derived analysis kind synthesized for a
// category, if any.
func (c Category) DerivedContext() (ContextKind, bool) {
	switch c {
	case CategorySecurity:
		return ContextSecurity, true
	case CategoryPerformance:
		return ContextPerformance, true
	}
	return "", false
}

// Filters are the hints extracted from a question independently of its category.
type Filters struct {
	FileNames []string `json:"file_names,omitempty"`
	Mentions  []string `json:"user_mentions,omitempty"`
	Dates     []string `json:"dates,omitempty"`
}

// Empty reports whether no filter was extracted.
func (f Filters) Empty() bool {
	return len(f.FileNames) == 0 && len(f.Mentions) == 0 && len(f.Dates) == 0
}

// Classification is the result of classifying a single question.
type Classification struct {
	Category   Category      `json:"primary_type"`
	Confidence float64       `json:"confidence"`
	Required   []ContextKind `json:"context_needed"`
	Filters    Filters       `json:"specific_filters"`
}

// KnowledgeLevel is the estimated expertise of the asker.
type KnowledgeLevel string

const (
	KnowledgeBeginner     KnowledgeLevel = "beginner"
	KnowledgeIntermediate KnowledgeLevel = "intermediate"
	KnowledgeExpert       KnowledgeLevel = "expert"
)
