package analyser

import (
	"context"
	"errors"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"traceback-analyser/internal/domain/entity"
)

// Claude streams messages from the Anthropic API.
type Claude struct {
	runner
	client anthropic.Client
}

// NewClaude creates a Claude analyser. The SDK's own retries are disabled,
// retrying happens in the runner.
func NewClaude(cfg Config, opts ...option.RequestOption) *Claude {
	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Claude{runner: newRunner(cfg), client: anthropic.NewClient(opts...)}
}

func (c *Claude) Name() string { return ProviderClaude }

func (c *Claude) Stream(ctx context.Context, req Request, emit func(string) error) (entity.Usage, error) {
	return c.stream(ctx, req, emit, c.open)
}

// open starts the request and reads the first event so that connection and
// HTTP errors surface here, where they can be retried.
func (c *Claude) open(ctx context.Context, p Prompt, temperature float64) (tokenStream, error) {
	s := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.OutputMaxTokens),
		Temperature: anthropic.Float(temperature),
		System:      []anthropic.TextBlockParam{{Text: p.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	})

	cs := &claudeStream{s: s}
	if !s.Next() {
		err := s.Err()
		_ = s.Close()
		if err == nil {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, claudeError(err)
	}
	cs.pending = true
	return cs, nil
}

func claudeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return httpError(apiErr.StatusCode, apiErr.Error(), err)
	}
	return err
}

type claudeStream struct {
	s       *ssestream.Stream[anthropic.MessageStreamEventUnion]
	message anthropic.Message
	pending bool
	done    bool
}

func (c *claudeStream) Recv() (string, error) {
	for {
		if c.pending {
			c.pending = false
		} else if !c.s.Next() {
			if err := c.s.Err(); err != nil {
				return "", claudeError(err)
			}
			c.done = true
			return "", io.EOF
		}

		event := c.s.Current()
		if err := c.message.Accumulate(event); err != nil {
			return "", err
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
				return text.Text, nil
			}
		}
	}
}

func (c *claudeStream) Usage() (int, int, bool) {
	if !c.done || c.message.Usage.InputTokens == 0 {
		return 0, 0, false
	}
	return int(c.message.Usage.InputTokens), int(c.message.Usage.OutputTokens), true
}

func (c *claudeStream) Close() error {
	return c.s.Close()
}
