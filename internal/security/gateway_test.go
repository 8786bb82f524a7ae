package security_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeagent/runtime/internal/agentcore"
	"github.com/codeagent/runtime/internal/result"
	"github.com/codeagent/runtime/internal/security"
)

func call(sessionID, tool string) agentcore.ToolCall {
	return agentcore.ToolCall{
		CallID:   "c1",
		ToolName: tool,
		Context:  agentcore.RequestContext{SessionID: sessionID},
	}
}

func TestGatewayBlocksSQLInjectionInput(t *testing.T) {
	g := security.NewGateway(security.DefaultPolicies())
	_, err := g.CheckInput(call("s1", "db.query"), "SELECT * FROM users WHERE 1=1 OR 1=1")
	require.Error(t, err)
	rerr, ok := result.As(err)
	require.True(t, ok)
	require.Equal(t, result.CodeInputBlocked, rerr.Code)
	require.Equal(t, 1, g.Violations().Len())
}

func TestGatewaySanitizesPathTraversal(t *testing.T) {
	g := security.NewGateway(security.DefaultPolicies())
	out, err := g.CheckInput(call("s1", "read_file"), "../../etc/passwd")
	require.NoError(t, err)
	require.NotContains(t, out, "../")
}

func TestGatewayRedactsBearerTokenInOutput(t *testing.T) {
	g := security.NewGateway(security.DefaultPolicies())
	out, err := g.CheckOutput(call("s1", "http.get"), "Authorization: Bearer sk-abcdef1234567890")
	require.NoError(t, err)
	require.NotContains(t, out, "sk-abcdef1234567890")
	require.Contains(t, out, "[REDACTED]")
}

func TestGatewayRateLimitBlocksRepeatedToolCalls(t *testing.T) {
	policies := map[string]security.Policy{
		"default": {WindowMs: 60_000, MaxRequests: 1, BurstLimit: 0, BlockDurationMs: 1_000},
	}
	g := security.NewGateway(policies)
	_, err := g.CheckInput(call("s1", "grep"), "hello")
	require.NoError(t, err)

	_, err = g.CheckInput(call("s1", "grep"), "hello again")
	require.Error(t, err)
	rerr, ok := result.As(err)
	require.True(t, ok)
	require.Equal(t, result.CodeRateLimitExceed, rerr.Code)
}
