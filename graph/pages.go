package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Page is one fanpage the credential can manage.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListPages returns the fanpages the current credential manages. Used at
// startup when no page_id is configured.
func (c *Client) ListPages(ctx context.Context) ([]Page, error) {
	token, err := c.tokens.GetValidToken(ctx, false)
	if err != nil || token == "" {
		return nil, fmt.Errorf("graph: no valid access token: %w", err)
	}

	body, err := c.get(ctx, "me/accounts", url.Values{"access_token": {token}})
	if err != nil {
		return nil, fmt.Errorf("graph: list pages: %w", err)
	}

	var resp struct {
		Data []Page `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("graph: decode pages: %w", err)
	}
	return resp.Data, nil
}
