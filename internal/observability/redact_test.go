package observability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactJSONMasksSensitiveKeys(t *testing.T) {
	in, _ := json.Marshal(map[string]any{
		"api_key": "sk-secret",
		"user": map[string]any{
			"name":     "alice",
			"password": "hunter2",
		},
		"items": []any{
			map[string]any{"token": "tok"},
			"plain",
		},
	})

	out := RedactJSON(in)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	require.Equal(t, "[REDACTED]", got["api_key"])
	require.Equal(t, "alice", got["user"].(map[string]any)["name"])
	require.Equal(t, "[REDACTED]", got["user"].(map[string]any)["password"])
	require.Equal(t, "[REDACTED]", got["items"].([]any)[0].(map[string]any)["token"])
}

func TestRedactJSONPassesThroughInvalidPayloads(t *testing.T) {
	raw := json.RawMessage("not json")
	require.Equal(t, raw, RedactJSON(raw))
	require.Empty(t, RedactJSON(nil))
}
