// Package analyzer contains the ChatGPT client classifying the tone of
// articles as neutral or biased.
package analyzer

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/crdatos/hemeroteca/app/store"
	cache "github.com/go-pkgz/expirable-cache/v2"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/exp/slog"
)

//go:embed data/prompt.tmpl
var prompt string

var promptTmpl = template.Must(template.New("prompt").Parse(prompt))

//go:generate moq -out mock_openai_client.go . OpenAIClient
// OpenAIClient is interface for OpenAI client with the possibility to mock it
type OpenAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Verdicts the model is instructed to choose from.
const (
	VerdictNeutral = "Neutral"
	VerdictBiased  = "Biased"
)

// ChatGPT is a client to make requests to OpenAI chatgpt service.
type ChatGPT struct {
	log   *slog.Logger
	cl    OpenAIClient
	cache cache.Cache[string, string]
}

// NewChatGPT creates new ChatGPT client.
func NewChatGPT(lg *slog.Logger, cl *http.Client, token string) *ChatGPT {
	config := openai.DefaultConfig(token)
	config.HTTPClient = cl

	return &ChatGPT{
		log: lg,
		cl:  openai.NewClientWithConfig(config),
		cache: cache.NewCache[string, string]().
			WithLRU().
			WithMaxKeys(500),
	}
}

// maxRequestTokens is a maximum number of tokens that can be sent to OpenAI.
const maxRequestTokens = 4097

// ErrTooManyTokens is returned when article is too long.
var ErrTooManyTokens = fmt.Errorf("too many tokens")

// Classify asks the model whether the article reads neutral or biased.
// Verdicts are cached by article URL, so retried dates don't burn API
// calls on articles already classified in this run.
func (s *ChatGPT) Classify(ctx context.Context, a store.Article) (string, error) {
	if verdict, ok := s.cache.Get(a.URL); ok {
		return verdict, nil
	}

	buf := &strings.Builder{}

	if err := promptTmpl.Execute(buf, a); err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	totalTokens := strings.Count(buf.String(), " ") + 1
	if totalTokens > maxRequestTokens {
		return "", ErrTooManyTokens
	}

	req := openai.ChatCompletionRequest{
		Model:       openai.GPT4,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buf.String()},
		},
	}

	resp, err := s.cl.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}

	s.cache.Set(a.URL, verdict, 0)

	return verdict, nil
}

// parseVerdict takes the first word of the model's reply; the model
// occasionally pads the verdict with punctuation or an explanation.
func parseVerdict(s string) (string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty response")
	}

	word := strings.Trim(fields[0], ".,!")
	switch {
	case strings.EqualFold(word, VerdictNeutral):
		return VerdictNeutral, nil
	case strings.EqualFold(word, VerdictBiased):
		return VerdictBiased, nil
	default:
		return "", fmt.Errorf("unexpected verdict %q", word)
	}
}
