package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/layer-3/moduls/core"
)

type searchResponse struct {
	Results []core.Agent `json:"results"`
}

type holdersResponse struct {
	Holders []core.Holder `json:"holders"`
}

// ListAgents returns one page of agents, newest first
func (c *Client) ListAgents(ctx context.Context, page, limit int) (*core.AgentPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	path := PathAgents
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp core.AgentPage
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAgent returns one agent
func (c *Client) GetAgent(ctx context.Context, id string) (*core.Agent, error) {
	var agent core.Agent
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathAgent, url.PathEscape(id)), "", nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// MyAgents returns the agents created by the authenticated user
func (c *Client) MyAgents(ctx context.Context) ([]core.Agent, error) {
	var resp core.AgentPage
	if err := c.doAuth(ctx, http.MethodGet, PathMyAgents, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// CreateAgent validates req and registers a new agent for the authenticated user
func (c *Client) CreateAgent(ctx context.Context, req core.CreateAgentRequest) (*core.Agent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var agent core.Agent
	if err := c.doAuth(ctx, http.MethodPost, PathAgents, req, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Search finds agents by name or symbol
func (c *Client) Search(ctx context.Context, query string) ([]core.Agent, error) {
	var resp searchResponse
	path := PathSearch + "?" + url.Values{"q": {query}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Metrics returns trading figures for an agent token
func (c *Client) Metrics(ctx context.Context, token string) (*core.TradingMetrics, error) {
	var resp core.TradingMetrics
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathMetrics, url.PathEscape(token)), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Holders returns the balance table of an agent token
func (c *Client) Holders(ctx context.Context, token string) ([]core.Holder, error) {
	var resp holdersResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(pathHolders, url.PathEscape(token)), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Holders, nil
}

// WebhookStatus reports the backend's chain event ingestion health
func (c *Client) WebhookStatus(ctx context.Context) (*core.WebhookStatus, error) {
	var resp core.WebhookStatus
	if err := c.do(ctx, http.MethodGet, PathWebhookStatus, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
