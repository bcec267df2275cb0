package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"503 is overloaded", &StatusError{StatusCode: 503, Message: "unavailable"}, ServerOverloaded},
		{"overloaded message on 500", &StatusError{StatusCode: 500, Message: "The model is Overloaded"}, ServerOverloaded},
		{"other 5xx", &StatusError{StatusCode: 502, Message: "bad gateway"}, ServerOther},
		{"429", &StatusError{StatusCode: 429, Message: "too many"}, ClientRateLimited},
		{"quota in message", &StatusError{StatusCode: 403, Message: "Quota exceeded"}, ClientRateLimited},
		{"other 4xx", &StatusError{StatusCode: 400, Message: "invalid key"}, ClientOther},
		{"wrapped status error", fmt.Errorf("call: %w", &StatusError{StatusCode: 503}), ServerOverloaded},
		{"plain error", errors.New("connection reset"), Unexpected},
		{"3xx is unexpected", &StatusError{StatusCode: 302}, Unexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassifyKeepsGenerationError(t *testing.T) {
	orig := &GenerationError{Kind: ClientOther, StatusCode: 401, Err: errors.New("nope")}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
}

func TestGenerationErrorMessage(t *testing.T) {
	tests := []struct {
		err  *GenerationError
		want string
	}{
		{
			&GenerationError{Kind: ServerOverloaded, StatusCode: 503},
			"The model is currently overloaded. Please retry shortly.",
		},
		{
			&GenerationError{Kind: ServerOther, StatusCode: 500, Err: &StatusError{StatusCode: 500, Message: " internal "}},
			"Model server error (500): internal",
		},
		{
			&GenerationError{Kind: ClientRateLimited, StatusCode: 429},
			"API quota or rate limit exceeded. Please try again later.",
		},
		{
			&GenerationError{Kind: ClientOther, StatusCode: 400, Err: &StatusError{StatusCode: 400, Message: "bad request"}},
			"Model client error (400): bad request",
		},
		{
			&GenerationError{Kind: Unexpected, Err: errors.New("boom")},
			"Unexpected error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Message())
		})
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	prompt := BuildSummaryPrompt("Summarize: {text}", "hello")
	assert.Equal(t, "Summarize: hello", prompt)

	long := make([]rune, MaxInputChars+500)
	for i := range long {
		long[i] = 'é'
	}
	prompt = BuildSummaryPrompt("{text}", string(long))
	assert.Len(t, []rune(prompt), MaxInputChars)
}

func TestGetSummaryPromptTemplate(t *testing.T) {
	t.Setenv("SUMMARY_PROMPT_TEMPLATE", "")
	assert.Equal(t, DefaultSummaryPromptTemplate, GetSummaryPromptTemplate())

	t.Setenv("SUMMARY_PROMPT_TEMPLATE", "custom {text}")
	assert.Equal(t, "custom {text}", GetSummaryPromptTemplate())
}
