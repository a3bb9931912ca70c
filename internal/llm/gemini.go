package llm

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// GeminiClient speaks the generateContent protocol.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) ChatWithText(ctx context.Context, message string) (string, error) {
	return c.send(ctx, []geminiPart{{Text: message}})
}

func (c *GeminiClient) ChatWithImage(ctx context.Context, message string, img Image) (string, error) {
	raw, mime, err := img.Resolve()
	if err != nil {
		return "", inputError(err)
	}
	return c.send(ctx, []geminiPart{
		{Text: message},
		{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(raw)}},
	})
}

func (c *GeminiClient) endpoint() string {
	return c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)
}

func (c *GeminiClient) send(ctx context.Context, parts []geminiPart) (string, error) {
	req := geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}
	var resp geminiResponse
	if err := postJSON(ctx, c.httpClient, c.endpoint(), nil, req, &resp); err != nil {
		return "", asError(err)
	}
	var sb strings.Builder
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &Error{Kind: KindBackend, Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
	}
	return sb.String(), nil
}
