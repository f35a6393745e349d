// Package airtable talks to the Airtable REST API: it reads base and table
// schemas, and creates the records that mirror submitted responses.
package airtable

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

	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/model"
	"github.com/pkg/errors"
)

var (
	ErrNotConfigured = errors.New("airtable: missing API key")
	ErrTableNotFound = errors.New("airtable: table not found")
)

// APIError is an error response of the Airtable API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("airtable: %d %s", e.Status, e.Type)
	}
	return fmt.Sprintf("airtable: %d %s: %s", e.Status, e.Type, e.Message)
}

type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

type Table struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	PrimaryFieldID string        `json:"primaryFieldId,omitempty"`
	Fields         model.Catalog `json:"fields"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Bases(ctx context.Context) ([]Base, error) {
	bases := []Base{}
	offset := ""
	for {
		path := "/meta/bases"
		if offset != "" {
			path += "?offset=" + url.QueryEscape(offset)
		}

		var page struct {
			Bases  []Base `json:"bases"`
			Offset string `json:"offset"`
		}
		err := c.do(ctx, http.MethodGet, path, nil, &page)
		if err != nil {
			return nil, err
		}
		bases = append(bases, page.Bases...)

		if page.Offset == "" {
			return bases, nil
		}
		offset = page.Offset
	}
}

func (c *Client) Tables(ctx context.Context, baseID string) ([]Table, error) {
	var res struct {
		Tables []Table `json:"tables"`
	}
	err := c.do(ctx, http.MethodGet, "/meta/bases/"+url.PathEscape(baseID)+"/tables", nil, &res)
	if err != nil {
		return nil, err
	}
	if res.Tables == nil {
		res.Tables = []Table{}
	}
	return res.Tables, nil
}

// Fields returns the field catalog of a table.
func (c *Client) Fields(ctx context.Context, baseID, tableID string) (model.Catalog, error) {
	tables, err := c.Tables(ctx, baseID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.ID == tableID {
			return t.Fields, nil
		}
	}
	return nil, ErrTableNotFound
}

// CreateRecord creates one record with the given cell values, keyed by field
// id, and returns its id. It is attempted once.
func (c *Client) CreateRecord(ctx context.Context, baseID, tableID string, fields map[string]any) (string, error) {
	req := struct {
		Fields map[string]any `json:"fields"`
	}{fields}
	var res struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(baseID)+"/"+url.PathEscape(tableID), req, &res)
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", errors.New("airtable: created record has no id")
	}
	return res.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "airtable: encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "airtable: new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "airtable: %s %s", method, path)
	}
	defer resp.Body.Close()
	log.Debugf("airtable: %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "airtable: decode response")
}

// decodeError reads both error shapes of the API:
// {"error": {"type": ..., "message": ...}} and {"error": "TYPE"}.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Type: http.StatusText(resp.StatusCode)}

	var body struct {
		Error json.RawMessage `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(b, &body) != nil || len(body.Error) == 0 {
		return apiErr
	}

	var detailed struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	var short string
	switch {
	case json.Unmarshal(body.Error, &detailed) == nil:
		apiErr.Type = detailed.Type
		apiErr.Message = detailed.Message
	case json.Unmarshal(body.Error, &short) == nil:
		apiErr.Type = short
	}
	return apiErr
}
