package agent

import (
	"context"

	"github.com/tarsy-bot/tarsy/pkg/llm"
)

// LLMClient is the seam iteration controllers use to call the model. It is
// satisfied by *llm.Manager; tests substitute a scripted fake.
type LLMClient interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}
