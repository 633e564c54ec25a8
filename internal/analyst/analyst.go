// Package analyst asks a chat-completion runtime to answer a question about
// a dataset in a constrained JSON shape.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"github.com/KaramelBytes/tablechat/internal/render"
	"github.com/KaramelBytes/tablechat/internal/utils"
	"go.uber.org/zap"
)

// DefaultMaxTokens is the output ceiling for analysis replies.
const DefaultMaxTokens = 8192

// TableContext is whatever describes the dataset to the model. The analyst
// passes its Markdown through without interpreting it.
type TableContext interface {
	Markdown() string
}

// Options configures an Analyst.
type Options struct {
	Model     string
	MaxTokens int
	Language  Language
	// ContextTokenBudget caps the dataset context; 0 means no cap.
	ContextTokenBudget int
	Logger             *zap.Logger
}

// Analyst turns questions into structured results.
type Analyst struct {
	rt   ai.Runtime
	opts Options
	log  *zap.Logger
}

func New(rt ai.Runtime, opts Options) *Analyst {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if _, ok := promptTemplates[opts.Language]; !ok {
		opts.Language = English
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyst{rt: rt, opts: opts, log: log}
}

// Fallback is the fixed result returned when no usable reply was obtained.
func (a *Analyst) Fallback() render.Result {
	if msg, ok := fallbackAnswers[a.opts.Language]; ok {
		return render.AnswerResult(msg)
	}
	return render.FallbackResult()
}

// Messages builds the request conversation for question.
func (a *Analyst) Messages(table TableContext, question string) []ai.Message {
	var tableText string
	if table != nil {
		tableText = table.Markdown()
		if a.opts.ContextTokenBudget > 0 {
			tableText = utils.TruncateToTokenLimit(tableText, a.opts.ContextTokenBudget)
		}
	}
	return []ai.Message{
		{Role: "system", Content: promptTemplates[a.opts.Language].system},
		{Role: "user", Content: buildPrompt(a.opts.Language, tableText, question)},
	}
}

// Ask issues one blocking call at temperature 0 and parses the reply. The
// inner shape is not validated here. Every failure, including a panic, is
// logged and yields Fallback.
func (a *Analyst) Ask(ctx context.Context, table TableContext, question string) (res render.Result) {
	start := time.Now()
	log := logging.FromContext(ctx, a.log)
	defer func() {
		if p := recover(); p != nil {
			log.Error("analysis panicked", zap.Any("panic", p))
			res = a.Fallback()
		}
	}()
	if a.rt == nil {
		log.Error("analysis failed", zap.Error(errors.New("no runtime configured")))
		return a.Fallback()
	}
	req := ai.GenerateRequest{
		Model:       a.opts.Model,
		Messages:    a.Messages(table, question),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: ai.Float64(0),
	}
	log.Debug("analysis prompt", zap.Any("tokens", utils.TokenBreakdown(map[string]string{
		"system": req.Messages[0].Content,
		"user":   req.Messages[1].Content,
	})))
	resp, err := a.rt.Generate(ctx, req)
	if err != nil {
		log.Error("analysis request failed", zap.String("model", req.Model), zap.Error(err))
		return a.Fallback()
	}
	text, err := resp.Content()
	if err != nil {
		log.Error("analysis reply empty", zap.String("upstream_id", resp.RequestID), zap.Error(err))
		return a.Fallback()
	}
	r, err := render.ParseResult(text)
	if err != nil {
		log.Error("analysis reply unusable",
			zap.String("upstream_id", resp.RequestID),
			zap.Error(fmt.Errorf("parse result: %w", err)),
			zap.Int("reply_len", len(text)))
		return a.Fallback()
	}
	log.Debug("analysis done",
		zap.String("upstream_id", resp.RequestID),
		zap.Int("keys", len(r)),
		zap.Duration("took", time.Since(start)))
	return r
}
