package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentdash/internal/ctxkeys"
	"github.com/BaSui01/agentdash/types"
)

const thinkDescription = `Use this tool for complex reasoning, planning and analysis before acting.
Write out your thought process: break the request into steps, weigh options, review results from workers and decide the next action.
The thought is logged and has no other side effect.`

// Think returns the no-op reasoning tool. Thoughts go to logger.
func Think(logger *zap.Logger) Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", "think"))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Thought *string `json:"thought"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Thought == nil {
			return nil, fmt.Errorf("think tool requires 'thought' parameter")
		}
		fields := []zap.Field{zap.String("thought", *in.Thought)}
		if id, ok := ctxkeys.AgentID(ctx); ok {
			fields = append(fields, zap.String("agent_id", id.String()))
		}
		if ctxkeys.LogLevel(ctx) >= types.LogDebug {
			logger.Info("agent thinking", fields...)
		}
		return json.RawMessage(`{"status":"thought_recorded","message":"Thought logged successfully"}`), nil
	}

	return Tool{
		Func: fn,
		Metadata: ToolMetadata{
			Schema: types.ToolSchema{
				Name:        "think",
				Description: strings.TrimSpace(thinkDescription),
				Parameters: schema(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"thought": map[string]any{
							"type":        "string",
							"description": "Your reasoning, plan or analysis",
						},
					},
					"required": []string{"thought"},
				}),
			},
		},
	}
}
