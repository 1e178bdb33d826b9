package gemini

import (
	"context"
	"fmt"
)

const titlePrompt = "Generate a title for the following transcription with max of 10 words/80 characters:\n%s\n\n" +
	"Only return the title, nothing else, no explanation and no quotes or followup."

var transformPrompts = map[string]string{
	"summary": "Summarize the following transcription in a few short paragraphs. " +
		"Keep the language of the transcription:\n%s",
	"action-items": "Extract a list of action items from the following transcription. " +
		"Return one item per line starting with '- ':\n%s",
	"blog-post": "Rewrite the following transcription as a blog post with a title and short sections. " +
		"Keep the language of the transcription:\n%s",
}

// Title generates a short title for transcription text
func (sp *Client) Title(ctx context.Context, text, key string) (string, error) {
	return sp.Generate(ctx, &GenerateData{Prompt: fmt.Sprintf(titlePrompt, text), Temperature: 0.7,
		MaxTokens: 30, Key: key})
}

// Transform generates a transformation of the text
func (sp *Client) Transform(ctx context.Context, tType, text string) (string, error) {
	p, ok := transformPrompts[tType]
	if !ok {
		return "", fmt.Errorf("unknown transformation type '%s'", tType)
	}
	return sp.Generate(ctx, &GenerateData{Prompt: fmt.Sprintf(p, text), Temperature: 0.7, MaxTokens: 2048})
}

// SupportedTransformation returns true if tType is known
func SupportedTransformation(tType string) bool {
	_, ok := transformPrompts[tType]
	return ok
}
