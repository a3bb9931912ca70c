package llm

import (
	"context"
	"net/http"
	"strings"
)

// OpenAIClient speaks the chat-completions protocol.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) ChatWithText(ctx context.Context, message string) (string, error) {
	return c.send(ctx, []contentPart{{Type: "text", Text: message}})
}

func (c *OpenAIClient) ChatWithImage(ctx context.Context, message string, img Image) (string, error) {
	raw, mime, err := img.Resolve()
	if err != nil {
		return "", inputError(err)
	}
	return c.send(ctx, []contentPart{
		{Type: "text", Text: message},
		{Type: "image_url", ImageURL: &imageURL{URL: DataURI(mime, raw)}},
	})
}

func (c *OpenAIClient) endpoint() string {
	if strings.HasSuffix(c.baseURL, "/v1") {
		return c.baseURL + "/chat/completions"
	}
	return c.baseURL + "/v1/chat/completions"
}

func (c *OpenAIClient) send(ctx context.Context, parts []contentPart) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, c.endpoint(), headers, req, &resp); err != nil {
		return "", asError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Kind: KindBackend, Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}
