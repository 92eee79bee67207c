// ABOUTME: Tests for envelope framing, decode validation, and the error taxonomy.
// ABOUTME: Exercises malformed frames, oversized frames, and kind round-trips.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundtrip(t *testing.T) {
	data, err := EncodeRequest("req-1", MethodSpawn, SpawnParams{Command: "echo", Args: []string{"hi"}})
	require.NoError(t, err)

	req, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, MethodSpawn, req.Method)

	var p SpawnParams
	require.NoError(t, Unmarshal(req.Params, &p))
	assert.Equal(t, "echo", p.Command)
	assert.Equal(t, []string{"hi"}, p.Args)
}

func TestDecodeRequest_Malformed(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		req, err := DecodeRequest([]byte("{not json"))
		require.Error(t, err)
		assert.Nil(t, req)
		assert.Equal(t, KindProtocolError, KindOf(err))
	})

	t.Run("missing method keeps id", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"req-7"}`))
		require.Error(t, err)
		// The partially-parsed request survives so the caller can still
		// correlate an error response.
		require.NotNil(t, req)
		assert.Equal(t, "req-7", req.ID)
	})

	t.Run("missing id", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"method":"server.ping"}`))
		require.Error(t, err)
		require.NotNil(t, req)
		assert.Empty(t, req.ID)
	})

	t.Run("oversized", func(t *testing.T) {
		big := fmt.Sprintf(`{"id":"x","method":"y","params":%q}`, strings.Repeat("a", MaxMessageSize))
		_, err := DecodeRequest([]byte(big))
		require.Error(t, err)
		assert.Equal(t, KindProtocolError, KindOf(err))
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("result", func(t *testing.T) {
		resp, err := OKResponse("req-1", SpawnResult{AgentID: "a-1"})
		require.NoError(t, err)
		data, err := json.Marshal(resp)
		require.NoError(t, err)

		got, err := DecodeResponse(data)
		require.NoError(t, err)
		assert.Equal(t, "req-1", got.ID)
		assert.Nil(t, got.Error)
	})

	t.Run("error", func(t *testing.T) {
		resp := ErrResponse("req-2", Errorf(KindNotFound, "unknown agent"))
		data, err := json.Marshal(resp)
		require.NoError(t, err)

		got, err := DecodeResponse(data)
		require.NoError(t, err)
		require.NotNil(t, got.Error)
		assert.Equal(t, KindNotFound, got.Error.Kind)
	})

	t.Run("both result and error rejected", func(t *testing.T) {
		_, err := DecodeResponse([]byte(`{"id":"x","result":{},"error":{"kind":"Internal","message":"boom"}}`))
		require.Error(t, err)
	})

	t.Run("missing id rejected", func(t *testing.T) {
		_, err := DecodeResponse([]byte(`{"result":{}}`))
		require.Error(t, err)
	})
}

func TestMutating(t *testing.T) {
	assert.True(t, Mutating(MethodSpawn))
	assert.True(t, Mutating(MethodPause))
	assert.True(t, Mutating(MethodResume))
	assert.True(t, Mutating(MethodStop))
	assert.True(t, Mutating(MethodWriteStdin))

	assert.False(t, Mutating(MethodStatus))
	assert.False(t, Mutating(MethodBatchStatus))
	assert.False(t, Mutating(MethodOutput))
	assert.False(t, Mutating(MethodPing))
}

func TestErrorKinds(t *testing.T) {
	err := Errorf(KindTimeout, "request %s timed out", "req-1")
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindNotFound))

	wrapped := fmt.Errorf("calling server: %w", err)
	assert.Equal(t, KindTimeout, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestWireError_UnknownKindCollapses(t *testing.T) {
	w := &WireError{Kind: "FutureKind", Message: "novel failure"}
	err := w.Err()
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, err.Error(), "FutureKind")
}

func TestLimitsValidate(t *testing.T) {
	assert.Error(t, Limits{}.Validate())
	assert.Error(t, Limits{Wallclock: -1}.Validate())
	assert.NoError(t, Limits{Wallclock: 1}.Validate())
}
