package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxErrorBody = 512

// postJSON sends body to url and decodes a 2xx response into out. Failures
// come back as *Error.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	reqID := uuid.NewString()
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return &Error{Kind: KindInput, Message: "encode request: " + err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return &Error{Kind: KindInput, Message: "build request: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Warn().Str("req_id", reqID).Err(err).Dur("elapsed", time.Since(start)).Msg("llm request failed")
		return &Error{Kind: KindTransient, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}
	log.Debug().Str("req_id", reqID).Int("status", resp.StatusCode).Int("bytes", len(raw)).
		Dur("elapsed", time.Since(start)).Msg("llm response")

	if resp.StatusCode/100 != 2 {
		kind := KindBackend
		if shouldRetry(resp.StatusCode) {
			kind = KindTransient
		}
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &Error{Kind: kind, StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(snippet))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindBackend, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	return nil
}

// asError normalizes any error into *Error.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindBackend, Message: err.Error(), Err: err}
}
