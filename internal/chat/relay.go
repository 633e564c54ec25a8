package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"go.uber.org/zap"
)

// Options configures a Relay.
type Options struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	// Temperature is omitted from the request when nil.
	Temperature *float64
	Logger      *zap.Logger
}

// Relay forwards a conversation to a runtime and returns the reply.
type Relay struct {
	rt   ai.Runtime
	opts Options
	log  *zap.Logger
}

// NewRelay builds a relay over rt.
func NewRelay(rt ai.Runtime, opts Options) *Relay {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{rt: rt, opts: opts, log: log}
}

// Reply is either a completed text or a live stream of fragments.
type Reply struct {
	text   string
	stream *ai.Stream
}

// TextReply wraps completed text.
func TextReply(s string) Reply { return Reply{text: s} }

// StreamReply wraps a live stream.
func StreamReply(s *ai.Stream) Reply { return Reply{stream: s} }

func (r Reply) IsStream() bool { return r.stream != nil }

// Text is the completed text; empty for stream replies.
func (r Reply) Text() string { return r.text }

// Stream is the live cursor; nil for text replies.
func (r Reply) Stream() *ai.Stream { return r.stream }

// FailureMessage renders err as text fit to show in place of a reply.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Sorry, the request failed: %v", err)
}

// BuildMessages assembles the wire conversation: optional system message,
// history in order, then the new user message. Turns that are not human are
// sent as assistant.
func BuildMessages(history []Turn, system, message string) []ai.Message {
	msgs := make([]ai.Message, 0, len(history)+2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, ai.Message{Role: "system", Content: system})
	}
	for _, t := range history {
		role := "assistant"
		if t.Role == RoleHuman {
			role = "user"
		}
		msgs = append(msgs, ai.Message{Role: role, Content: t.Content})
	}
	msgs = append(msgs, ai.Message{Role: "user", Content: message})
	return msgs
}

// Send relays message with the prior history. It never fails: any error or
// panic before the reply is available comes back as a text Reply carrying
// FailureMessage. The history is only read.
func (r *Relay) Send(ctx context.Context, history []Turn, message string, streaming bool) (reply Reply) {
	log := logging.FromContext(ctx, r.log)
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			log.Error("relay panicked", zap.Error(err))
			reply = TextReply(FailureMessage(err))
		}
	}()
	if r.rt == nil {
		return TextReply(FailureMessage(errors.New("no chat runtime configured")))
	}
	req := ai.GenerateRequest{
		Model:       r.opts.Model,
		Messages:    BuildMessages(history, r.opts.SystemPrompt, message),
		MaxTokens:   r.opts.MaxTokens,
		Temperature: r.opts.Temperature,
	}
	if streaming {
		if srt, ok := r.rt.(ai.StreamRuntime); ok {
			s, err := srt.OpenStream(ctx, req)
			if err != nil {
				log.Warn("open stream failed", zap.String("model", req.Model), zap.Int("status", ai.StatusCode(err)), zap.Error(err))
				return TextReply(FailureMessage(err))
			}
			return StreamReply(s)
		}
		log.Warn("runtime cannot stream, falling back to a blocking call", zap.String("model", req.Model))
	}
	resp, err := r.rt.Generate(ctx, req)
	if err != nil {
		log.Warn("generate failed", zap.String("model", req.Model), zap.Int("status", ai.StatusCode(err)), zap.Error(err))
		return TextReply(FailureMessage(err))
	}
	text, err := resp.Content()
	if err != nil {
		log.Warn("empty reply", zap.String("model", req.Model), zap.String("upstream_id", resp.RequestID))
		return TextReply(FailureMessage(err))
	}
	return TextReply(strings.TrimSpace(text))
}

// Exchange runs one conversational turn against session: it snapshots the
// history, appends the human turn, relays, and records the ai turn. For a
// streamed reply an empty ai turn is appended first and replaced with the
// accumulated text once the stream ends. onFragment (optional) sees each
// fragment as it arrives; a blocking reply arrives as a single fragment.
// It returns the final reply text. Turns on the same session run one at a
// time; a second caller waits until the first turn is recorded.
func (r *Relay) Exchange(ctx context.Context, s *Session, message string, streaming bool, onFragment func(string)) string {
	s.turn.Lock()
	defer s.turn.Unlock()
	history := s.History()
	s.Append(RoleHuman, message)
	reply := r.Send(ctx, history, message, streaming)
	if !reply.IsStream() {
		s.Append(RoleAI, reply.Text())
		if onFragment != nil && reply.Text() != "" {
			onFragment(reply.Text())
		}
		return reply.Text()
	}

	s.Append(RoleAI, "")
	stream := reply.Stream()
	defer stream.Close()
	var sb strings.Builder
	for stream.Next() {
		frag := stream.Text()
		sb.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
		s.ReplaceLast(sb.String())
	}
	if err := stream.Err(); err != nil {
		logging.FromContext(ctx, r.log).Warn("stream ended with error", zap.String("session", s.ID), zap.Error(err))
		failure := FailureMessage(err)
		if sb.Len() > 0 {
			failure = "\n\n" + failure
		}
		sb.WriteString(failure)
		if onFragment != nil {
			onFragment(failure)
		}
	}
	text := strings.TrimSpace(sb.String())
	s.ReplaceLast(text)
	return text
}
