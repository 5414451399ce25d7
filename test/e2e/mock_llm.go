package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tarsy-bot/tarsy/pkg/llm"
	"github.com/tarsy-bot/tarsy/pkg/models"
)

// LLMScriptEntry is one scripted model response.
type LLMScriptEntry struct {
	// Text is the assistant response content.
	Text string

	// Error makes Generate fail instead of answering.
	Error error

	// WaitCh blocks Generate until closed, then answers normally. OnBlock
	// is notified once the call is parked, so tests can synchronize on
	// "the model is now thinking".
	WaitCh  <-chan struct{}
	OnBlock chan<- struct{}
}

// ScriptedLLMClient implements llm.Client with a pre-recorded script.
// Entries are consumed in call order; routed entries, keyed by a substring
// of the rendered conversation, take precedence so concurrent sessions can
// receive differentiated answers.
type ScriptedLLMClient struct {
	mu         sync.Mutex
	sequential []LLMScriptEntry
	seqIndex   int
	routes     []route
	captured   []*llm.Request
}

type route struct {
	match   string
	entries []LLMScriptEntry
	index   int
}

// NewScriptedLLMClient creates an empty script.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// AddSequential appends an entry consumed in call order.
func (c *ScriptedLLMClient) AddSequential(entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequential = append(c.sequential, entry)
}

// AddRouted appends an entry consumed only by requests whose conversation
// contains match.
func (c *ScriptedLLMClient) AddRouted(match string, entry LLMScriptEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.routes {
		if c.routes[i].match == match {
			c.routes[i].entries = append(c.routes[i].entries, entry)
			return
		}
	}
	c.routes = append(c.routes, route{match: match, entries: []LLMScriptEntry{entry}})
}

// CapturedRequests returns every request seen so far.
func (c *ScriptedLLMClient) CapturedRequests() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*llm.Request, len(c.captured))
	copy(out, c.captured)
	return out
}

// Close implements llm.Client.
func (c *ScriptedLLMClient) Close() error { return nil }

// Generate implements llm.Client.
func (c *ScriptedLLMClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.captured = append(c.captured, req)
	entry, err := c.nextEntry(req)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if entry.Error != nil {
		return nil, entry.Error
	}

	return &llm.Response{
		Content:      entry.Text,
		Usage:        models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		StopReason:   "stop",
		Conversation: append(append([]llm.Message{}, req.Messages...), llm.AssistantMessage(entry.Text)),
	}, nil
}

func (c *ScriptedLLMClient) nextEntry(req *llm.Request) (LLMScriptEntry, error) {
	conversation := renderConversation(req)

	for i := range c.routes {
		r := &c.routes[i]
		if r.index < len(r.entries) && strings.Contains(conversation, r.match) {
			entry := r.entries[r.index]
			r.index++
			return entry, nil
		}
	}

	if c.seqIndex < len(c.sequential) {
		entry := c.sequential[c.seqIndex]
		c.seqIndex++
		return entry, nil
	}

	return LLMScriptEntry{}, fmt.Errorf("LLM script exhausted: no entry for call %d (%s)",
		len(c.captured), req.StepDescription)
}

func renderConversation(req *llm.Request) string {
	var sb strings.Builder
	for _, m := range req.Messages {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
