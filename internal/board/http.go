package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient is a minimal JSON client for the board's item API.
type HTTPClient struct {
	BaseURL  string
	Token    string
	HTTPDoer *http.Client
	Timeout  time.Duration
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx board responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("board api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *HTTPClient) GetItem(ctx context.Context, id string) (Item, error) {
	var item Item
	err := c.do(ctx, http.MethodGet, "items/"+url.PathEscape(id), nil, &item)
	return item, err
}

func (c *HTTPClient) GetBoardItems(ctx context.Context, boardID, cursor string) (ItemPage, error) {
	endpoint := "boards/" + url.PathEscape(boardID) + "/items"
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}
	var page ItemPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &page)
	return page, err
}

func (c *HTTPClient) GetItemNotes(ctx context.Context, id string) ([]Note, error) {
	var resp struct {
		Notes []Note `json:"notes"`
	}
	err := c.do(ctx, http.MethodGet, "items/"+url.PathEscape(id)+"/notes", nil, &resp)
	return resp.Notes, err
}

func (c *HTTPClient) SetField(ctx context.Context, id, fieldKey, value string) error {
	return c.SetFields(ctx, id, map[string]string{fieldKey: value})
}

func (c *HTTPClient) SetFields(ctx context.Context, id string, fields map[string]string) error {
	body := map[string]any{"fields": fields}
	return c.do(ctx, http.MethodPatch, "items/"+url.PathEscape(id), body, nil)
}

func (c *HTTPClient) AppendNote(ctx context.Context, id, text string) error {
	body := map[string]any{"text": text}
	return c.do(ctx, http.MethodPost, "items/"+url.PathEscape(id)+"/notes", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPDoer == nil {
		c.HTTPDoer = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPDoer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
