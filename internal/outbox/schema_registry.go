package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const schemaRegistryContentType = "application/vnd.schemaregistry.v1+json"

var errSubjectNotFound = errors.New("schema subject not found")

// SchemaRegistryClient resolves JSON schema ids from a Confluent-compatible
// registry. Resolved ids are cached for the life of the client.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client

	mu  sync.RWMutex
	ids map[string]int
}

// NewSchemaRegistryClient constructs a client for baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ids:        make(map[string]int),
	}
}

// EnsureSchema returns the id of the latest schema under subject, registering
// schema first when the subject does not exist.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	c.mu.RLock()
	id, ok := c.ids[subject]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := c.fetchLatest(ctx, subject)
	if errors.Is(err, errSubjectNotFound) {
		id, err = c.register(ctx, subject, schema)
	}
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.ids[subject] = id
	c.mu.Unlock()
	return id, nil
}

func (c *SchemaRegistryClient) fetchLatest(ctx context.Context, subject string) (int, error) {
	return c.do(ctx, http.MethodGet, "/subjects/"+url.PathEscape(subject)+"/versions/latest", nil)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{"schemaType": "JSON", "schema": schema})
	if err != nil {
		return 0, err
	}
	return c.do(ctx, http.MethodPost, "/subjects/"+url.PathEscape(subject)+"/versions", body)
}

// do issues a registry request and decodes the {"id": n} answer.
func (c *SchemaRegistryClient) do(ctx context.Context, method, path string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", schemaRegistryContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return 0, errSubjectNotFound
	case resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return 0, fmt.Errorf("schema registry %s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode schema registry response: %w", err)
	}
	return payload.ID, nil
}
