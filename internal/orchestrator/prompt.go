package orchestrator

import (
	"fmt"
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
)

// PromptInput is everything the prompt is built from.
type PromptInput struct {
	Question       string
	Classification chatmodel.Classification
	Bundle         *chatmodel.ContextBundle
	History        []chatmodel.Message
	HistoryLimit   int
	Enhancement    string
}

// BuildPrompt composes the model prompt. The output depends only on the
// input, so identical turns produce identical prompts.
func BuildPrompt(in PromptInput) string {
	subject := "the pull request"
	if in.Bundle != nil && in.Bundle.Repository != nil && in.Bundle.Metadata == nil {
		subject = "the repository"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("You are an expert GitHub PR analysis assistant. Answer the user's question about %s based on the provided context.\n\n", subject))
	b.WriteString(fmt.Sprintf("**User Question:** %s\n\n", in.Question))
	b.WriteString(fmt.Sprintf("**Query Type:** %s\n", in.Classification.Category))
	b.WriteString(fmt.Sprintf("**Confidence:** %g\n", in.Classification.Confidence))

	for _, section := range []string{
		buildContextSection(in.Bundle),
		buildHistorySection(in.History, in.HistoryLimit),
		strings.TrimSpace(in.Enhancement),
		buildCategoryInstructions(in.Classification.Category, in.Bundle),
		buildGeneralInstructions(in.Classification.Category),
		buildResponseContract(in.Bundle),
	} {
		if section == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(section)
		if !strings.HasSuffix(section, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func buildGeneralInstructions(c chatmodel.Category) string {
	items := []string{"Answer the question directly and accurately based on the provided context"}
	if hint, ok := categoryHint[c]; ok {
		items = append(items, hint)
	}
	items = append(items,
		"Be comprehensive yet concise - provide actionable insights",
		"Reference specific sources such as file names, line numbers and people",
		"Avoid generic responses - be specific to this context",
		"If information is incomplete, clearly state what additional context would help",
		"End every follow-up question with a question mark",
	)

	var b strings.Builder
	b.WriteString("**Enhanced Instructions:**\n")
	for i, item := range items {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	return b.String()
}

func buildResponseContract(bundle *chatmodel.ContextBundle) string {
	kinds := bundle.Kinds()
	quoted := make([]string, len(kinds))
	for i, k := range kinds {
		quoted[i] = fmt.Sprintf("%q", k)
	}

	var b strings.Builder
	b.WriteString("**Response Format:**\n")
	b.WriteString("Respond with ONLY a valid JSON object in this exact format:\n")
	b.WriteString("{\n")
	b.WriteString(`  "answer": "Your detailed answer with specific references (file:line) and exact quotes",` + "\n")
	b.WriteString(`  "message_type": "text|code|json|markdown",` + "\n")
	b.WriteString(fmt.Sprintf("  \"context_used\": [%s],\n", strings.Join(quoted, ", ")))
	b.WriteString(`  "followup_questions": ["Question 1?", "Question 2?", "Question 3?"],` + "\n")
	b.WriteString(`  "confidence_score": 0.85,` + "\n")
	b.WriteString(`  "sources": ["PR metadata", "File: path/to/file.go:45-67"]` + "\n")
	b.WriteString("}\n")
	b.WriteString("Only list context kinds in context_used that appear in the Available Context above.\n")
	return b.String()
}
