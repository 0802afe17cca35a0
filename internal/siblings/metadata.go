package siblings

import (
	"context"
	"time"
)

// MetadataClient enriches a content title with metadata (§4.1 stage 4).
type MetadataClient struct{ c *client }

// NewMetadataClient constructs a metadata enrichment sibling client.
func NewMetadataClient(baseURL string, timeout time.Duration, opts ...Option) *MetadataClient {
	return &MetadataClient{c: newClient("metadata", baseURL, timeout, opts...)}
}

// Configured reports whether a base URL was set.
func (m *MetadataClient) Configured() bool { return m.c.configured() }

// Enrich posts {title,type}; any 2xx response counts as success (§6).
func (m *MetadataClient) Enrich(ctx context.Context, title, contentType string) error {
	req := struct {
		Title string `json:"title"`
		Type  string `json:"type"`
	}{Title: title, Type: contentType}
	return m.c.do(ctx, "POST", "/api/enrich", "metadata.enrich", req, nil)
}
