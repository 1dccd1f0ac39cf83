package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"raftsql/pkg/engine"
	"raftsql/pkg/store"
)

// ExecutePath is the client-facing statement endpoint on every node.
const ExecutePath = "/api/execute"

// Client forwards statements to other nodes over HTTP. It implements
// store.Forwarder.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{httpClient: http.DefaultClient}
}

// Execute ships one statement to the node at addr and returns its result.
// Errors the remote reported come back as the corresponding store errors, so
// the dispatch layer can retry leader discovery on NotLeader.
func (c *Client) Execute(ctx context.Context, addr, stmt string, level store.Consistency) (engine.Result, error) {
	reqBody, err := json.Marshal(ExecuteRequest{
		SQL:         stmt,
		Consistency: level.String(),
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+ExecutePath, bytes.NewReader(reqBody))
	if err != nil {
		return engine.Result{}, fmt.Errorf("create execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return engine.Result{}, fmt.Errorf("execute do: %w", err)
	}
	defer httpResp.Body.Close()

	var resp ExecuteResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return engine.Result{}, fmt.Errorf("decode execute response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return engine.Result{}, ErrorFromResponse(resp)
	}
	return ResultFromResponse(resp), nil
}
