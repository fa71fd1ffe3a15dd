package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/walminer/pkg/log"
)

const changesEndpoint = "/v1/ingest/changes"

// HTTPSink posts batches as a JSON array to ServiceURL + /v1/ingest/changes.
type HTTPSink struct {
	client HTTPClient
	logger log.Logger
	gzip   bool
}

// NewHTTPSink creates a new HTTP sink.
func NewHTTPSink(client HTTPClient, logger log.Logger) *HTTPSink {
	if logger == nil {
		logger = log.Nop
	}
	return &HTTPSink{
		client: client,
		logger: logger,
	}
}

// WithGzip makes the sink compress request bodies.
func (s *HTTPSink) WithGzip(on bool) *HTTPSink {
	s.gzip = on
	return s
}

// Send posts the batch. Any non-2xx answer is an error.
func (s *HTTPSink) Send(ctx context.Context, b *Batch, metadata Metadata) error {
	if b.Empty() {
		return nil
	}

	body, err := s.encodeBody(b)
	if err != nil {
		return err
	}

	url := metadata.ServiceURL + changesEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if metadata.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+metadata.AuthKey)
	}
	req.Header.Set("X-Walminer-Hostname", metadata.Hostname)
	req.Header.Set("X-Walminer-OSArch", metadata.OSArch)
	req.Header.Set("X-Walminer-Timeline", strconv.FormatUint(uint64(metadata.Timeline), 10))
	req.Header.Set("X-Walminer-First-LSN", b.Changes[0].LSN.String())
	req.Header.Set("X-Walminer-Last-LSN", b.Last().LSN.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("posted changes",
		log.Int("changes", b.Size()),
		log.Int("bytes", len(body)),
	)
	return nil
}

// encodeBody joins the payloads into a JSON array.
func (s *HTTPSink) encodeBody(b *Batch) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(b.TotalBytes + b.Size() + 2)

	var w io.Writer = &buf
	var zw *gzip.Writer
	if s.gzip {
		zw = gzip.NewWriter(&buf)
		w = zw
	}

	if _, err := w.Write([]byte{'['}); err != nil {
		return nil, err
	}
	for i, p := range b.Payloads {
		if i > 0 {
			if _, err := w.Write([]byte{','}); err != nil {
				return nil, err
			}
		}
		if _, err := w.Write(p); err != nil {
			return nil, err
		}
	}
	if _, err := w.Write([]byte{']'}); err != nil {
		return nil, err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress body: %w", err)
		}
	}
	return buf.Bytes(), nil
}
