package analyzer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/crdatos/hemeroteca/app/store"
	"github.com/crdatos/hemeroteca/pkg/logx"
	cache "github.com/go-pkgz/expirable-cache/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestChatGPT_Classify(t *testing.T) {
	article := store.Article{
		URL:   "https://www.crhoy.com/nacionales/some-article/",
		Title: "Gobierno anuncia plan",
		Body:  "El gobierno presentó un plan de inversión.",
	}

	svc := prepChatGPT(t, func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		assert.Equal(t, openai.GPT4, req.Model)
		assert.Equal(t, float32(0.3), req.Temperature)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Title: Gobierno anuncia plan")
		assert.Contains(t, req.Messages[0].Content, "El gobierno presentó un plan de inversión.")
		assert.Contains(t, req.Messages[0].Content, "Respond ONLY with one word")

		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "Neutral"}},
			},
		}, nil
	})

	verdict, err := svc.Classify(context.Background(), article)
	require.NoError(t, err)
	assert.Equal(t, VerdictNeutral, verdict)
}

func TestChatGPT_Classify_cached(t *testing.T) {
	var calls int
	svc := prepChatGPT(t, func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		calls++
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "Biased"}},
			},
		}, nil
	})

	article := store.Article{URL: "https://www.crhoy.com/a1/", Title: "t", Body: "b"}

	for i := 0; i < 3; i++ {
		verdict, err := svc.Classify(context.Background(), article)
		require.NoError(t, err)
		assert.Equal(t, VerdictBiased, verdict)
	}

	assert.Equal(t, 1, calls)
}

func TestChatGPT_Classify_paddedVerdict(t *testing.T) {
	svc := prepChatGPT(t, func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "biased. The article uses emotionally charged wording."}},
			},
		}, nil
	})

	verdict, err := svc.Classify(context.Background(), store.Article{URL: "https://x/", Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, VerdictBiased, verdict)
}

func TestChatGPT_Classify_unexpectedVerdict(t *testing.T) {
	svc := prepChatGPT(t, func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "Probably fine"}},
			},
		}, nil
	})

	_, err := svc.Classify(context.Background(), store.Article{URL: "https://x/", Title: "t", Body: "b"})
	require.ErrorContains(t, err, `unexpected verdict "Probably"`)
}

func TestChatGPT_Classify_tooLong(t *testing.T) {
	svc := prepChatGPT(t, func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		t.Fatal("must not be called")
		return openai.ChatCompletionResponse{}, nil
	})

	article := store.Article{
		URL:   "https://x/",
		Title: "t",
		Body:  strings.Repeat("palabra ", maxRequestTokens+1),
	}

	_, err := svc.Classify(context.Background(), article)
	require.ErrorIs(t, err, ErrTooManyTokens)
}

func TestChatGPT_Classify_apiError(t *testing.T) {
	svc := prepChatGPT(t, func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, fmt.Errorf("rate limited")
	})

	_, err := svc.Classify(context.Background(), store.Article{URL: "https://x/", Title: "t", Body: "b"})
	require.ErrorContains(t, err, "create chat completion")
}

func prepChatGPT(t *testing.T, fn func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)) *ChatGPT {
	t.Helper()
	return &ChatGPT{
		log:   slog.New(logx.NoOp()),
		cl:    &OpenAIClientMock{CreateChatCompletionFunc: fn},
		cache: cache.NewCache[string, string]().WithLRU().WithMaxKeys(10),
	}
}
