package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/BaSui01/agentdash/agent/tools"
	"github.com/BaSui01/agentdash/types"
)

// toolConfig converts registry schemas to a Converse tool configuration.
// It returns nil for an empty list; Converse rejects an empty tool array.
func toolConfig(schemas []types.ToolSchema) (*brtypes.ToolConfiguration, error) {
	if len(schemas) == 0 {
		return nil, nil
	}
	out := make([]brtypes.Tool, 0, len(schemas))
	for _, s := range schemas {
		params := map[string]any{}
		if len(s.Parameters) > 0 {
			if err := json.Unmarshal(s.Parameters, &params); err != nil {
				return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", s.Name, err)
			}
		}
		if _, ok := params["type"]; !ok {
			params["type"] = "object"
		}
		out = append(out, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(s.Name),
				Description: aws.String(s.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(params)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: out}, nil
}

func userText(text string) brtypes.Message {
	return brtypes.Message{
		Role:    brtypes.ConversationRoleUser,
		Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
	}
}

// messageText joins the text blocks of a message.
func messageText(msg brtypes.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if t, ok := block.(*brtypes.ContentBlockMemberText); ok && t.Value != "" {
			parts = append(parts, t.Value)
		}
	}
	return strings.Join(parts, "\n")
}

// toolUses extracts the tool calls requested in an assistant message.
func toolUses(msg brtypes.Message) ([]types.ToolCall, error) {
	var calls []types.ToolCall
	for _, block := range msg.Content {
		use, ok := block.(*brtypes.ContentBlockMemberToolUse)
		if !ok {
			continue
		}
		args := json.RawMessage(`{}`)
		if use.Value.Input != nil {
			raw, err := use.Value.Input.MarshalSmithyDocument()
			if err != nil {
				return nil, fmt.Errorf("decode input of tool %s: %w", aws.ToString(use.Value.Name), err)
			}
			args = raw
		}
		calls = append(calls, types.ToolCall{
			ID:        aws.ToString(use.Value.ToolUseId),
			Name:      aws.ToString(use.Value.Name),
			Arguments: args,
		})
	}
	return calls, nil
}

// toolResultMessage answers every tool use of the previous assistant
// message in one user message, in call order.
func toolResultMessage(results []tools.Result) brtypes.Message {
	blocks := make([]brtypes.ContentBlock, 0, len(results))
	for _, r := range results {
		status := brtypes.ToolResultStatusSuccess
		if r.Failed() {
			status = brtypes.ToolResultStatusError
		}
		blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
			Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(r.CallID),
				Status:    status,
				Content: []brtypes.ToolResultContentBlock{
					&brtypes.ToolResultContentBlockMemberText{Value: r.Text()},
				},
			},
		})
	}
	return brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks}
}
