package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hb-chen/skillgate/internal/agent"
	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// ResourceScheme prefixes the URI of every execution record.
const ResourceScheme = "execution://"

// NewGatewayServer exposes the pipeline's skills as tools and its ledger
// as resources.
func NewGatewayServer(name, version string, pipeline *agent.Pipeline) *Server {
	s := NewServer(name, version)
	s.SetCapabilities(ServerCapabilities{
		Tools:     &ToolsCapability{},
		Resources: &ResourcesCapability{},
	})

	b := &binding{pipeline: pipeline}
	s.RegisterHandler(MethodToolsList, b.listTools)
	s.RegisterHandler(MethodToolsCall, b.callTool)
	s.RegisterHandler(MethodResourcesList, b.listResources)
	s.RegisterHandler(MethodResourcesRead, b.readResource)
	return s
}

type binding struct {
	pipeline *agent.Pipeline
}

func (b *binding) listTools(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	descriptors := b.pipeline.Registry().List()
	tools := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, ToolFromDescriptor(d))
	}
	return ToolsListResult{Tools: tools}, nil
}

func (b *binding) callTool(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params ToolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewJSONRPCError(ErrCodeInvalidParams, "Invalid tools/call parameters", nil)
	}
	if _, err := b.pipeline.Registry().Lookup(params.Name); err != nil {
		return nil, NewJSONRPCError(ErrCodeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name), nil)
	}

	target, args := splitArguments(params.Arguments)
	rec, err := b.pipeline.Execute(ctx, agent.Request{
		Module:     params.Name,
		Target:     target,
		Parameters: args,
	})
	if err != nil {
		if skill.IsRejection(err) {
			return ToolCallResult{
				Content: []Content{{Type: "text", Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return nil, err
	}

	text, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return ToolCallResult{
		Content: []Content{{Type: "text", Text: string(text)}},
		IsError: rec.Status == storage.StatusFailed,
	}, nil
}

func (b *binding) listResources(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	records, err := b.pipeline.History(ctx)
	if err != nil {
		return nil, err
	}
	resources := make([]Resource, 0, len(records))
	for _, rec := range records {
		resources = append(resources, Resource{
			URI:         ResourceScheme + rec.ExecutionID,
			Name:        fmt.Sprintf("%s %s", rec.Module, rec.Target),
			Description: string(rec.Status),
			MimeType:    "application/json",
		})
	}
	return ResourcesListResult{Resources: resources}, nil
}

func (b *binding) readResource(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params ResourceReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewJSONRPCError(ErrCodeInvalidParams, "Invalid resources/read parameters", nil)
	}
	id, ok := strings.CutPrefix(params.URI, ResourceScheme)
	if !ok || id == "" {
		return nil, NewJSONRPCError(ErrCodeInvalidParams, fmt.Sprintf("Unsupported resource URI: %s", params.URI), nil)
	}

	rec, err := b.pipeline.Record(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NewJSONRPCError(ErrCodeInvalidParams, fmt.Sprintf("Resource not found: %s", params.URI), nil)
	}
	if err != nil {
		logger.Errorf("[MCP] Failed to read %s: %v", params.URI, err)
		return nil, err
	}

	text, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return ResourceReadResult{Contents: []ResourceContents{{
		URI:      params.URI,
		MimeType: "application/json",
		Text:     string(text),
	}}}, nil
}
