// Package nodeclient talks to the REST API of ledger nodes. Requests fail
// over across the configured nodes in order.
package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wallet-bridge/go-backend/pkg/models"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 4 << 20
	infoPath        = "/api/core/v2/info"
	outputPath      = "/api/core/v2/outputs/"
	basicOutputPath = "/api/indexer/v1/outputs/basic"
	maxIndexerPages = 64
)

var (
	ErrNodeUnavailable = errors.New("no node answered the request")
	ErrInvalidNode     = errors.New("invalid node address")
	ErrNotFound        = errors.New("not found on node")
)

// OutputResponse is the node's view of one output.
type OutputResponse struct {
	Metadata models.OutputMetadata `json:"metadata"`
	Output   OutputBody            `json:"output"`
}

type OutputBody struct {
	Type   int    `json:"type"`
	Amount string `json:"amount"`
}

type indexerPage struct {
	LedgerIndex uint32   `json:"ledgerIndex"`
	Cursor      string   `json:"cursor,omitempty"`
	Items       []string `json:"items"`
}

type Client struct {
	nodes []string
	http  *http.Client
}

// New resolves the node list of opts; nodes may be URLs or multiaddrs.
func New(opts models.ClientOptions) (*Client, error) {
	candidates := make([]string, 0, len(opts.Nodes)+1)
	if strings.TrimSpace(opts.PrimaryNode) != "" {
		candidates = append(candidates, opts.PrimaryNode)
	}
	candidates = append(candidates, opts.Nodes...)

	seen := make(map[string]struct{}, len(candidates))
	nodes := make([]string, 0, len(candidates))
	for _, raw := range candidates {
		resolved, err := ResolveNodeURL(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		nodes = append(nodes, resolved)
	}
	timeout := defaultTimeout
	if opts.APITimeoutMs > 0 {
		timeout = time.Duration(opts.APITimeoutMs) * time.Millisecond
	}
	return &Client{
		nodes: nodes,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Nodes() []string {
	return append([]string(nil), c.nodes...)
}

// Info returns the info of the first node that answers.
func (c *Client) Info(ctx context.Context) (models.NodeInfo, error) {
	var out models.NodeInfo
	err := c.failover(ctx, func(base string) error {
		info, err := c.InfoAt(ctx, base, nil)
		if err != nil {
			return err
		}
		out = info
		return nil
	})
	return out, err
}

// InfoAt queries one node, optionally authenticated.
func (c *Client) InfoAt(ctx context.Context, nodeURL string, auth *models.NodeAuth) (models.NodeInfo, error) {
	base, err := ResolveNodeURL(nodeURL)
	if err != nil {
		return models.NodeInfo{}, err
	}
	var body models.NodeInfoBody
	if err := c.getJSON(ctx, base+infoPath, auth, &body); err != nil {
		return models.NodeInfo{}, err
	}
	return models.NodeInfo{Node: base, Info: body}, nil
}

// BasicOutputIDs lists the unspent basic output ids owned by address.
func (c *Client) BasicOutputIDs(ctx context.Context, address string) ([]string, error) {
	var ids []string
	err := c.failover(ctx, func(base string) error {
		collected := make([]string, 0)
		cursor := ""
		for page := 0; page < maxIndexerPages; page++ {
			query := url.Values{}
			query.Set("address", address)
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			var resp indexerPage
			if err := c.getJSON(ctx, base+basicOutputPath+"?"+query.Encode(), nil, &resp); err != nil {
				return err
			}
			collected = append(collected, resp.Items...)
			if resp.Cursor == "" {
				break
			}
			cursor = resp.Cursor
		}
		ids = collected
		return nil
	})
	return ids, err
}

// Output fetches one output with its metadata.
func (c *Client) Output(ctx context.Context, outputID string) (OutputResponse, error) {
	var out OutputResponse
	err := c.failover(ctx, func(base string) error {
		return c.getJSON(ctx, base+outputPath+url.PathEscape(outputID), nil, &out)
	})
	return out, err
}

func (c *Client) failover(ctx context.Context, call func(base string) error) error {
	if len(c.nodes) == 0 {
		return fmt.Errorf("%w: empty node list", ErrNodeUnavailable)
	}
	var lastErr error
	for _, base := range c.nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call(base)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrNodeUnavailable, lastErr)
}

func (c *Client) getJSON(ctx context.Context, target string, auth *models.NodeAuth, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	applyAuth(req, auth)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body := io.LimitReader(resp.Body, maxResponseBody)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode node response: %w", err)
	}
	return nil
}

func applyAuth(req *http.Request, auth *models.NodeAuth) {
	if auth == nil {
		return
	}
	if auth.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+auth.JWT)
		return
	}
	if auth.Username != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}
}
