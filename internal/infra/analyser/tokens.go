package analyser

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the prompt size in model tokens.
type TokenCounter interface {
	CountPrompt(p Prompt) int
}

// Per-message framing used by chat models: <|start|>role\n content<|end|>\n
const (
	tokensPerMessage   = 4
	tokensPerRole      = 1
	tokensReplyPrimer  = 3
	fallbackRunesPerTk = 4
)

// TiktokenCounter counts with the cl100k_base encoding. The encoding is
// loaded lazily; when it cannot be loaded (no network, no cache) the counter
// falls back to a rune based estimate.
type TiktokenCounter struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error

	getEncoding func(name string) (*tiktoken.Tiktoken, error)
}

// NewTiktokenCounter returns a counter for the named encoding,
// "cl100k_base" when empty.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding, getEncoding: tiktoken.GetEncoding}
}

func (c *TiktokenCounter) init() error {
	c.once.Do(func() {
		c.enc, c.initErr = c.getEncoding(c.encoding)
		if c.initErr != nil {
			slog.Warn("tiktoken encoding unavailable, estimating token counts",
				slog.String("encoding", c.encoding),
				slog.String("error", c.initErr.Error()))
		}
	})
	return c.initErr
}

// CountPrompt returns the tokens of a system plus user message exchange.
func (c *TiktokenCounter) CountPrompt(p Prompt) int {
	total := tokensReplyPrimer
	for _, content := range []string{p.System, p.User} {
		total += tokensPerMessage + tokensPerRole + c.count(content)
	}
	return total
}

func (c *TiktokenCounter) count(text string) int {
	if err := c.init(); err != nil {
		return estimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + fallbackRunesPerTk - 1) / fallbackRunesPerTk
}
