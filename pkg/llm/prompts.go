package llm

import (
	"os"
	"strings"
)

// MaxInputChars caps the article text placed in the prompt
const MaxInputChars = 30000

// DefaultSummaryPromptTemplate is the default prompt template.
// Variables available: {text}
const DefaultSummaryPromptTemplate = `You are an editor writing short briefs for a Telegram channel.
Summarize the article below for a busy, technical reader.

RULES:
1. Write in the language of the article
2. Start with a one-line headline in <b>bold</b>
3. Follow with 3 to 5 bullet points (•), one key fact per bullet
4. Finish with one sentence on why it matters, prefixed by <i>Why it matters:</i>
5. Only use the HTML tags Telegram accepts: <b>, <i>, <u>, <s>, <code>, <pre>, <a href="...">
6. Do not use Markdown (no **, no #, no backticks)
7. Do not invent facts that are not in the article
8. Stay under 900 characters

Article:
{text}

Brief:`

// GetSummaryPromptTemplate returns the prompt template from env var or default
func GetSummaryPromptTemplate() string {
	if customPrompt := os.Getenv("SUMMARY_PROMPT_TEMPLATE"); customPrompt != "" {
		return customPrompt
	}
	return DefaultSummaryPromptTemplate
}

// BuildSummaryPrompt fills template with the article text, cut to MaxInputChars
func BuildSummaryPrompt(template, text string) string {
	if template == "" {
		template = DefaultSummaryPromptTemplate
	}
	return strings.ReplaceAll(template, "{text}", truncateRunes(text, MaxInputChars))
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
