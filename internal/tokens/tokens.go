// Package tokens estimates how many model tokens a message will cost.
package tokens

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// Estimation methods.
const (
	MethodSimple   = "simple"
	MethodTiktoken = "tiktoken"
)

// Estimator counts tokens with cl100k_base, or with a words * 1.3
// approximation when the codec is unavailable.
type Estimator struct {
	method string
	codec  tokenizer.Codec
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func loadCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Debugf("tokens: cl100k_base unavailable, using simple estimate: %v", err)
			return
		}
		codec = c
	})
	return codec
}

// NewEstimator returns an Estimator for method. Unknown methods, and
// tiktoken when the codec cannot be loaded, fall back to simple.
func NewEstimator(method string) *Estimator {
	if method == MethodTiktoken {
		if c := loadCodec(); c != nil {
			return &Estimator{method: MethodTiktoken, codec: c}
		}
	}
	return &Estimator{method: MethodSimple}
}

// Method returns the method actually in use.
func (e *Estimator) Method() string {
	return e.method
}

// Estimate returns the token count of content.
func (e *Estimator) Estimate(content string) int {
	if content == "" {
		return 0
	}
	if e.codec != nil {
		ids, _, err := e.codec.Encode(content)
		if err == nil {
			return len(ids)
		}
		log.Debugf("tokens: encode failed, using simple estimate: %v", err)
	}
	return simpleEstimate(content)
}

func simpleEstimate(content string) int {
	return int(float64(len(strings.Fields(content))) * 1.3)
}

// contextLimits maps model name prefixes to context window sizes.
var contextLimits = []struct {
	prefix string
	limit  int
}{
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-4-32k", 32768},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"claude", 200000},
	{"gemini-1.5", 1000000},
	{"gemini-2", 1000000},
	{"gemini-pro", 32000},
	{"deepseek", 64000},
	{"qwen", 32768},
}

// DefaultContextLimit applies to unknown models.
const DefaultContextLimit = 8192

// ContextLimit returns the context window for model, matching the longest
// known prefix first.
func ContextLimit(model string) int {
	model = strings.ToLower(model)
	for _, entry := range contextLimits {
		if strings.HasPrefix(model, entry.prefix) {
			return entry.limit
		}
	}
	return DefaultContextLimit
}

// Analysis is a pre-flight estimate for one message.
type Analysis struct {
	Model           string `json:"model"`
	EstimatedTokens int    `json:"estimated_tokens"`
	ContextLimit    int    `json:"context_limit"`
	ExceedsLimit    bool   `json:"exceeds_limit"`
}

// Analyze estimates content against model's context window.
func (e *Estimator) Analyze(model, content string) Analysis {
	a := Analysis{
		Model:           model,
		EstimatedTokens: e.Estimate(content),
		ContextLimit:    ContextLimit(model),
	}
	a.ExceedsLimit = a.EstimatedTokens > a.ContextLimit
	return a
}
