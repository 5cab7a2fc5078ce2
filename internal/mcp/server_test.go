package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-chen/skillgate/internal/agent"
	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/internal/tracer"
)

type stubExecutor struct {
	exitCode int
}

func (s stubExecutor) Execute(ctx context.Context, inv *skill.Invocation) (*direct.Result, error) {
	return &direct.Result{Stdout: strings.Join(inv.Argv, " "), ExitCode: s.exitCode}, nil
}

func int64p(v int64) *int64 { return &v }

func newTestServer(t *testing.T, exitCode int) (*Server, *storage.MemoryLedger) {
	t.Helper()
	registry, err := skill.NewRegistry(skill.Descriptor{
		Name:        "scan_host",
		Description: "Port scan",
		Binary:      "nmap",
		Target:      skill.TargetHostOrCIDR,
		Args:        []string{"{params}", "{target}"},
		Parameters: []skill.ParamSpec{
			{Name: "ports", Type: skill.ParamString, Flag: "-p", Pattern: `^[0-9,-]+$`},
			{Name: "retries", Type: skill.ParamInt, Flag: "--max-retries", Min: int64p(0), Max: int64p(5)},
			{Name: "fast", Type: skill.ParamBool, Flag: "-F"},
			{Name: "timing", Type: skill.ParamEnum, Flag: "-T", Join: true, Values: []string{"3", "4"}},
		},
	})
	require.NoError(t, err)

	ledger := storage.NewMemoryLedger(0)
	p := agent.NewPipeline(registry, stubExecutor{exitCode: exitCode}, ledger, agent.Options{
		Tracer: tracer.NewMemoryTracer(),
	})
	return NewGatewayServer("skillgate", "test", p), ledger
}

// roundTrip feeds lines to Serve and decodes every response line.
func roundTrip(t *testing.T, s *Server, lines ...string) []JSONRPCResponse {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	var responses []JSONRPCResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func request(t *testing.T, id interface{}, method string, params interface{}) string {
	t.Helper()
	req, err := NewJSONRPCRequest(id, method, params)
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return string(b)
}

func TestInitializeAndNotifications(t *testing.T) {
	s, _ := newTestServer(t, 0)

	responses := roundTrip(t, s,
		request(t, 1, MethodInitialize, InitializeParams{
			ProtocolVersion: ProtocolVersion,
			ClientInfo:      ClientInfo{Name: "test-client", Version: "1.0"},
		}),
		request(t, nil, MethodInitialized, nil),
		request(t, nil, "notifications/unknown", nil),
		request(t, 2, MethodPing, nil),
	)
	require.Len(t, responses, 2)

	var init InitializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, "skillgate", init.ServerInfo.Name)
	assert.NotNil(t, init.Capabilities.Tools)
	assert.NotNil(t, init.Capabilities.Resources)

	assert.EqualValues(t, 2, responses[1].ID)
	assert.Nil(t, responses[1].Error)
}

func TestProtocolErrors(t *testing.T) {
	s, _ := newTestServer(t, 0)

	responses := roundTrip(t, s,
		"{not json",
		request(t, 1, "prompts/list", nil),
		request(t, 2, MethodToolsCall, ToolCallParams{Name: "no_such_tool"}),
		request(t, 3, MethodResourcesRead, ResourceReadParams{URI: "file:///etc/passwd"}),
		request(t, 4, MethodResourcesRead, ResourceReadParams{URI: ResourceScheme + "missing"}),
	)
	require.Len(t, responses, 5)

	codes := make([]int, 0, len(responses))
	for _, r := range responses {
		require.NotNil(t, r.Error)
		codes = append(codes, r.Error.Code)
	}
	assert.Equal(t, []int{
		ErrCodeParseError,
		ErrCodeMethodNotFound,
		ErrCodeInvalidParams,
		ErrCodeInvalidParams,
		ErrCodeInvalidParams,
	}, codes)
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t, 0)

	responses := roundTrip(t, s, request(t, 1, MethodToolsList, nil))
	require.Len(t, responses, 1)

	var result ToolsListResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	require.Len(t, result.Tools, 1)

	tool := result.Tools[0]
	assert.Equal(t, "scan_host", tool.Name)
	assert.Equal(t, []interface{}{"target"}, tool.InputSchema["required"])

	props := tool.InputSchema["properties"].(map[string]interface{})
	assert.Len(t, props, 5)
	assert.Equal(t, "string", props["target"].(map[string]interface{})["type"])

	retries := props["retries"].(map[string]interface{})
	assert.Equal(t, "integer", retries["type"])
	assert.EqualValues(t, 0, retries["minimum"])
	assert.EqualValues(t, 5, retries["maximum"])

	assert.Equal(t, "boolean", props["fast"].(map[string]interface{})["type"])
	assert.Equal(t, []interface{}{"3", "4"}, props["timing"].(map[string]interface{})["enum"])
	assert.Equal(t, `^[0-9,-]+$`, props["ports"].(map[string]interface{})["pattern"])
}

func TestToolCallRecordsAndExposesResource(t *testing.T) {
	s, ledger := newTestServer(t, 0)

	responses := roundTrip(t, s, request(t, 1, MethodToolsCall, ToolCallParams{
		Name: "scan_host",
		Arguments: map[string]interface{}{
			"target":  "10.0.0.0/24",
			"retries": 2,
			"timing":  "4",
		},
	}))
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	var call ToolCallResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &call))
	assert.False(t, call.IsError)
	require.Len(t, call.Content, 1)

	var rec storage.Record
	require.NoError(t, json.Unmarshal([]byte(call.Content[0].Text), &rec))
	assert.Equal(t, storage.StatusSuccess, rec.Status)
	assert.Equal(t, "10.0.0.0/24", rec.Target)
	assert.Contains(t, rec.Output, "--max-retries 2")
	assert.Contains(t, rec.Output, "-T4")
	assert.Equal(t, 1, ledger.Len())

	uri := ResourceScheme + rec.ExecutionID
	responses = roundTrip(t, s,
		request(t, 2, MethodResourcesList, nil),
		request(t, 3, MethodResourcesRead, ResourceReadParams{URI: uri}),
	)
	require.Len(t, responses, 2)

	var list ResourcesListResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &list))
	require.Len(t, list.Resources, 1)
	assert.Equal(t, uri, list.Resources[0].URI)
	assert.Equal(t, "success", list.Resources[0].Description)

	var read ResourceReadResult
	require.NoError(t, json.Unmarshal(responses[1].Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "application/json", read.Contents[0].MimeType)
	assert.JSONEq(t, call.Content[0].Text, read.Contents[0].Text)
}

func TestToolCallRejectionIsToolError(t *testing.T) {
	s, ledger := newTestServer(t, 0)

	responses := roundTrip(t, s,
		request(t, 1, MethodToolsCall, ToolCallParams{
			Name:      "scan_host",
			Arguments: map[string]interface{}{"target": "example.com; rm -rf /"},
		}),
		request(t, 2, MethodToolsCall, ToolCallParams{
			Name:      "scan_host",
			Arguments: map[string]interface{}{"target": "example.com", "retries": 9},
		}),
	)
	require.Len(t, responses, 2)

	for _, resp := range responses {
		require.Nil(t, resp.Error)
		var call ToolCallResult
		require.NoError(t, json.Unmarshal(resp.Result, &call))
		assert.True(t, call.IsError)
		require.Len(t, call.Content, 1)
		assert.NotEmpty(t, call.Content[0].Text)
	}
	assert.Equal(t, 0, ledger.Len())
}

func TestToolCallFailedExecution(t *testing.T) {
	s, _ := newTestServer(t, 3)

	responses := roundTrip(t, s, request(t, 1, MethodToolsCall, ToolCallParams{
		Name:      "scan_host",
		Arguments: map[string]interface{}{"target": "example.com"},
	}))
	require.Len(t, responses, 1)

	var call ToolCallResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &call))
	assert.True(t, call.IsError)

	var rec storage.Record
	require.NoError(t, json.Unmarshal([]byte(call.Content[0].Text), &rec))
	assert.Equal(t, storage.StatusFailed, rec.Status)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 3, *rec.ExitCode)
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	s, _ := newTestServer(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.Serve(ctx, strings.NewReader(request(t, 1, MethodPing, nil)+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}
