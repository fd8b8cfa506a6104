package app

import (
	"fmt"
	"strings"

	"docanalyzer/internal/model"
	"docanalyzer/internal/vectorstore"
)

const (
	PromptStyleDefault    = "default"
	PromptStyleAnalytical = "analytical"
	PromptStyleConcise    = "concise"
)

var systemPrompts = map[string]string{
	PromptStyleDefault: "You are a helpful assistant that answers questions based on the provided document context. " +
		"Use only the information in the context. If the context does not contain enough information to answer, " +
		"say so clearly. Cite the sources you used by their number.",
	PromptStyleAnalytical: "You are an analytical assistant. Answer the question using only the provided document context. " +
		"Break the answer into its components, compare the evidence from different sources, and point out " +
		"contradictions or gaps. If the context is insufficient, state exactly what is missing.",
	PromptStyleConcise: "You are a concise assistant. Answer the question in as few sentences as possible using only " +
		"the provided document context. No preamble, no repetition of the question. If the context does not " +
		"contain the answer, say \"The documents do not contain this information.\"",
}

// systemPromptFor falls back to the default style for unknown names.
func systemPromptFor(style string) string {
	if p, ok := systemPrompts[style]; ok {
		return p
	}
	return systemPrompts[PromptStyleDefault]
}

// buildContextBlock renders retrieved chunks in retrieval order, each
// labelled with its source and relevance so the model can cite them.
func buildContextBlock(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Source %d: %s (relevance: %.2f)]\n%s", i+1, r.Source, r.Similarity, r.Content))
	}
	return strings.Join(parts, "\n---\n")
}

// buildUserPrompt assembles the generation prompt: the recent
// conversation when there is one, the retrieved context, then the
// question itself.
func buildUserPrompt(contextBlock, history, question string) string {
	var sb strings.Builder
	if history != "" {
		sb.WriteString("Recent conversation:\n")
		sb.WriteString(history)
		sb.WriteString("\n\n")
	}
	if contextBlock == "" {
		fmt.Fprintf(&sb, "No documents matched this question.\n\nQuestion: %s\n\n"+
			"Answer that you could not find relevant information in the uploaded documents.", question)
		return sb.String()
	}
	fmt.Fprintf(&sb, "Context from the uploaded documents:\n\n%s\n\nQuestion: %s", contextBlock, question)
	return sb.String()
}

// formatHistory renders messages as alternating User:/Assistant: lines
// for the enhancement and generation prompts.
func formatHistory(messages []model.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		label := "User"
		if m.Role == "assistant" {
			label = "Assistant"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func buildEnhancementPrompt(history, question string) string {
	return fmt.Sprintf("Given the conversation below, rewrite the follow-up question as a single self-contained "+
		"question that can be understood without the conversation. Resolve pronouns and references. "+
		"Return only the rewritten question, nothing else.\n\nConversation:\n%s\n\nFollow-up question: %s",
		history, question)
}
