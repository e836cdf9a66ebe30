package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Transport performs one request/response exchange with a backend. A nil
// resp means the caller does not wait for a body.
type Transport interface {
	Call(ctx context.Context, d Descriptor, route string, req, resp interface{}) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, d Descriptor, route string, req, resp interface{}) error

func (f TransportFunc) Call(ctx context.Context, d Descriptor, route string, req, resp interface{}) error {
	return f(ctx, d, route, req, resp)
}

// HTTPTransport posts encoded documents to "<endpoint>/<route>". Bodies
// larger than compressAbove bytes are sent zstd compressed.
type HTTPTransport struct {
	client        *http.Client
	codec         Codec
	compressAbove int
}

func NewHTTPTransport(client *http.Client, codec Codec, compressAbove int) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	if codec == nil {
		codec = jsonCodec{}
	}
	return &HTTPTransport{client: client, codec: codec, compressAbove: compressAbove}
}

func (t *HTTPTransport) Call(ctx context.Context, d Descriptor, route string, req, resp interface{}) error {
	if d.Endpoint == "" {
		return fmt.Errorf("analyzer %s has no endpoint", d.ID)
	}

	body, err := t.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", route, err)
	}

	compressed := t.compressAbove > 0 && len(body) > t.compressAbove
	if compressed {
		body = compress(body)
	}

	url := strings.TrimSuffix(d.Endpoint, "/") + "/" + route
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", t.codec.ContentType())
	httpReq.Header.Set("Accept", t.codec.ContentType())
	if compressed {
		httpReq.Header.Set("Content-Encoding", "zstd")
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call analyzer: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("analyzer returned status %d: %s", httpResp.StatusCode, truncate(string(respBody), 256))
	}

	if resp == nil || len(respBody) == 0 {
		return nil
	}

	if httpResp.Header.Get("Content-Encoding") == "zstd" {
		if respBody, err = decompress(respBody); err != nil {
			return fmt.Errorf("failed to decompress response: %w", err)
		}
	}

	if err := t.codec.Unmarshal(respBody, resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", route, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
