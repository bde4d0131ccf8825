package bedrock

import (
	"github.com/BaSui01/agentdash/config"
	"github.com/BaSui01/agentdash/types"
)

// Limits bound one turn's event loop. A cycle is one model call; a tool
// iteration is one requested tool use.
type Limits struct {
	MaxCycles         int
	MaxToolIterations int
}

var (
	managerLimits = Limits{MaxCycles: 100, MaxToolIterations: 1000}
	workerLimits  = Limits{MaxCycles: 20, MaxToolIterations: 200}
)

// LimitsFor picks the manager or worker limits from cfg, falling back to
// the built-in defaults for unset values.
func LimitsFor(t types.AgentType, cfg config.AgentConfig) Limits {
	if t.IsWorker() {
		return Limits{
			MaxCycles:         orDefault(cfg.WorkerMaxCycles, workerLimits.MaxCycles),
			MaxToolIterations: orDefault(cfg.WorkerMaxToolIterations, workerLimits.MaxToolIterations),
		}
	}
	return Limits{
		MaxCycles:         orDefault(cfg.ManagerMaxCycles, managerLimits.MaxCycles),
		MaxToolIterations: orDefault(cfg.ManagerMaxToolIterations, managerLimits.MaxToolIterations),
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
