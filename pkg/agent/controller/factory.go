package controller

import (
	"fmt"

	"github.com/tarsy-bot/tarsy/pkg/agent"
	"github.com/tarsy-bot/tarsy/pkg/config"
)

// Factory creates controllers from the iteration strategy configured on a
// stage. Controllers are stateless, but a fresh instance is returned per
// call to keep the agent-per-stage lifecycle uniform.
type Factory struct{}

// Compile-time check against the agent package's seam.
var _ agent.ControllerFactory = (*Factory)(nil)

// NewFactory creates a controller factory.
func NewFactory() *Factory {
	return &Factory{}
}

// CreateController implements agent.ControllerFactory.
func (f *Factory) CreateController(strategy config.IterationStrategy) (agent.Controller, error) {
	switch strategy {
	case config.IterationStrategyReact:
		return NewReActController(), nil
	case config.IterationStrategyReactStage:
		return NewReActStageController(), nil
	case config.IterationStrategyReactFinalAnalysis:
		return NewFinalAnalysisController(), nil
	case config.IterationStrategyNativeThinking:
		return NewNativeThinkingController(), nil
	default:
		return nil, fmt.Errorf("unknown iteration strategy %q", strategy)
	}
}
