package analyser

import (
	"context"
	"errors"
	"math"

	"github.com/sashabaranov/go-openai"

	"traceback-analyser/internal/domain/entity"
)

// OpenAI streams chat completions from the OpenAI API.
type OpenAI struct {
	runner
	client *openai.Client
}

// NewOpenAI creates an OpenAI analyser. cfg is expected to be valid.
func NewOpenAI(cfg Config) *OpenAI {
	return NewOpenAIWithClient(cfg, openai.NewClient(cfg.APIKey))
}

// NewOpenAIWithClient uses an existing client, e.g. one pointed at a proxy.
func NewOpenAIWithClient(cfg Config, client *openai.Client) *OpenAI {
	return &OpenAI{runner: newRunner(cfg), client: client}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) Stream(ctx context.Context, req Request, emit func(string) error) (entity.Usage, error) {
	return o.stream(ctx, req, emit, o.open)
}

func (o *OpenAI) open(ctx context.Context, p Prompt, temperature float64) (tokenStream, error) {
	// go-openai drops a zero temperature from the request body.
	t := float32(temperature)
	if t == 0 {
		t = math.SmallestNonzeroFloat32
	}

	s, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.OutputMaxTokens,
		Temperature: t,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	})
	if err != nil {
		return nil, openAIError(err)
	}
	return &openAIStream{s: s}, nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return httpError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return httpError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return err
}

type openAIStream struct {
	s     *openai.ChatCompletionStream
	usage *openai.Usage
}

func (o *openAIStream) Recv() (string, error) {
	resp, err := o.s.Recv()
	if err != nil {
		return "", err
	}
	if resp.Usage != nil {
		o.usage = resp.Usage
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (o *openAIStream) Usage() (int, int, bool) {
	if o.usage == nil {
		return 0, 0, false
	}
	return o.usage.PromptTokens, o.usage.CompletionTokens, true
}

func (o *openAIStream) Close() error {
	return o.s.Close()
}
