// ABOUTME: Typed wrappers over Call for every protocol method.
// ABOUTME: Thin by design; retry policy belongs to the caller.

package client

import (
	"context"
	"encoding/json"

	"github.com/2389/coven-flow/internal/protocol"
)

// Spawn launches an agent process on the server.
func (c *Client) Spawn(ctx context.Context, command string, args []string, limits protocol.Limits) (string, error) {
	var res protocol.SpawnResult
	err := c.Call(ctx, protocol.MethodSpawn, protocol.SpawnParams{Command: command, Args: args, Limits: limits}, &res)
	return res.AgentID, err
}

// Pause suspends an agent.
func (c *Client) Pause(ctx context.Context, agentID string) error {
	return c.Call(ctx, protocol.MethodPause, protocol.AgentParams{AgentID: agentID}, nil)
}

// Resume continues a paused agent.
func (c *Client) Resume(ctx context.Context, agentID string) error {
	return c.Call(ctx, protocol.MethodResume, protocol.AgentParams{AgentID: agentID}, nil)
}

// Stop terminates an agent.
func (c *Client) Stop(ctx context.Context, agentID string, graceful bool) error {
	return c.Call(ctx, protocol.MethodStop, protocol.StopParams{AgentID: agentID, Graceful: graceful}, nil)
}

// Status fetches one agent's snapshot.
func (c *Client) Status(ctx context.Context, agentID string) (protocol.AgentStatus, error) {
	var res protocol.AgentStatus
	err := c.Call(ctx, protocol.MethodStatus, protocol.AgentParams{AgentID: agentID}, &res)
	return res, err
}

// BatchStatus fetches several agents in one consistent snapshot.
func (c *Client) BatchStatus(ctx context.Context, agentIDs []string) (protocol.BatchStatusResult, error) {
	var res protocol.BatchStatusResult
	err := c.Call(ctx, protocol.MethodBatchStatus, protocol.BatchStatusParams{AgentIDs: agentIDs}, &res)
	return res, err
}

// Output reads buffered stream data past sinceOffset.
func (c *Client) Output(ctx context.Context, agentID string, stream protocol.Stream, sinceOffset uint64) (protocol.OutputResult, error) {
	var res protocol.OutputResult
	err := c.Call(ctx, protocol.MethodOutput, protocol.OutputParams{AgentID: agentID, Stream: stream, SinceOffset: sinceOffset}, &res)
	return res, err
}

// WriteStdin forwards data to an agent's stdin.
func (c *Client) WriteStdin(ctx context.Context, agentID string, data []byte) error {
	return c.Call(ctx, protocol.MethodWriteStdin, protocol.WriteStdinParams{AgentID: agentID, Data: data}, nil)
}

// List enumerates all agents on the server.
func (c *Client) List(ctx context.Context) ([]protocol.AgentStatus, error) {
	var res protocol.ListResult
	err := c.Call(ctx, protocol.MethodList, struct{}{}, &res)
	return res.Agents, err
}

// CustomAction invokes an agent-specific passthrough action.
func (c *Client) CustomAction(ctx context.Context, agentID, name string, params json.RawMessage) (json.RawMessage, error) {
	var res protocol.CustomActionResult
	err := c.Call(ctx, protocol.MethodCustomAction, protocol.CustomActionParams{AgentID: agentID, Name: name, Params: params}, &res)
	return res.Result, err
}

// Stats fetches the server's running counters.
func (c *Client) Stats(ctx context.Context) (protocol.StatsResult, error) {
	var res protocol.StatsResult
	err := c.Call(ctx, protocol.MethodStats, struct{}{}, &res)
	return res, err
}

// Ping checks server liveness without touching any per-agent lock.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, protocol.MethodPing, struct{}{}, nil)
}
