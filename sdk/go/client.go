package taxlinesdk

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

	"github.com/shopspring/decimal"
)

// Client is a minimal Taxline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// ComputeRequest asks the server to compute one return. Input is any value
// that encodes to the taxpayer input document.
type ComputeRequest struct {
	TaxYear int    `json:"tax_year"`
	Input   any    `json:"input"`
	PriorID string `json:"prior_id,omitempty"`
	Save    bool   `json:"save,omitempty"`
}

// Return is a computed return. Forms are kept raw: a form is an object of
// line values, or an array of such objects when it spans several pages.
type Return struct {
	TaxYear     int                          `json:"tax_year"`
	Forms       map[string]json.RawMessage   `json:"forms"`
	Worksheets  map[string][]decimal.Decimal `json:"worksheets"`
	Warnings    []string                     `json:"warnings,omitempty"`
	Unsupported bool                         `json:"unsupported,omitempty"`
}

// Pages decodes every page of a form; nil when the form was not filed.
func (r Return) Pages(form string) ([]map[string]any, error) {
	raw, ok := r.Forms[form]
	if !ok {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) > 0 && raw[0] == '[' {
		var pages []map[string]any
		if err := dec.Decode(&pages); err != nil {
			return nil, fmt.Errorf("decode form %s: %w", form, err)
		}
		return pages, nil
	}
	var page map[string]any
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("decode form %s: %w", form, err)
	}
	return []map[string]any{page}, nil
}

// Amount reads a numeric line from the first page of a form. Absent lines
// read as zero.
func (r Return) Amount(form, line string) (decimal.Decimal, error) {
	pages, err := r.Pages(form)
	if err != nil || len(pages) == 0 {
		return decimal.Zero, err
	}
	n, ok := pages[0][line].(json.Number)
	if !ok {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

type ComputeResult struct {
	ID        string      `json:"id,omitempty"`
	CreatedAt string      `json:"created_at,omitempty"`
	PriorID   string      `json:"prior_id,omitempty"`
	Return    Return      `json:"return"`
	Trace     []StepTrace `json:"trace"`
}

type StepTrace struct {
	Step string `json:"step"`
	Ran  bool   `json:"ran"`
}

// ReturnRecord is a stored return.
type ReturnRecord struct {
	ID        string `json:"id"`
	TaxYear   int    `json:"tax_year"`
	SSN       string `json:"ssn"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Return    Return `json:"return"`
}

type ReturnSummary struct {
	ID          string `json:"id"`
	TaxYear     int    `json:"tax_year"`
	SSN         string `json:"ssn"`
	Name        string `json:"name"`
	Warnings    int    `json:"warnings"`
	Unsupported bool   `json:"unsupported,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Compute computes, and optionally stores, a return.
func (c *Client) Compute(ctx context.Context, req ComputeRequest) (ComputeResult, error) {
	var resp ComputeResult
	err := c.do(ctx, http.MethodPost, "v0/returns", req, &resp)
	return resp, err
}

// GetReturn fetches a stored return.
func (c *Client) GetReturn(ctx context.Context, id string) (ReturnRecord, error) {
	var resp ReturnRecord
	err := c.do(ctx, http.MethodGet, "v0/returns/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListReturns lists stored returns, newest first. Zero year lists all years.
func (c *Client) ListReturns(ctx context.Context, year int, ssn string) ([]ReturnSummary, error) {
	q := url.Values{}
	if year != 0 {
		q.Set("tax_year", fmt.Sprint(year))
	}
	if ssn != "" {
		q.Set("ssn", ssn)
	}
	endpoint := "v0/returns"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []ReturnSummary `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// DeleteReturn removes a stored return.
func (c *Client) DeleteReturn(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/returns/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
