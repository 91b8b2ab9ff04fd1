package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/medora-health/realtime/internal/domain"
	"github.com/medora-health/realtime/pkg/errs"
)

const defaultTimeout = 30 * time.Second

// Client talks to the consultation REST API: paged message history, sends,
// edits, deletes and attachment blobs.
type Client struct {
	baseURL    string
	tokens     domain.TokenSource
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL string, tokens domain.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Messages fetches one history page, newest first as the server returns it.
// hasMore reports whether an older page exists.
func (c *Client) Messages(ctx context.Context, consultationID int64, page int) (msgs []domain.Message, hasMore bool, err error) {
	path := fmt.Sprintf("/consultations/%d/messages/?page=%d", consultationID, page)
	var out messagePage
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, false, err
	}
	return out.Results, out.Next != nil, nil
}

// Send posts a message as multipart form data with an optional attachment.
func (c *Client) Send(ctx context.Context, consultationID int64, content string, att *domain.Upload) (domain.Message, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("content", content); err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}
	if att != nil {
		fw, err := w.CreateFormFile("attachment", att.Name)
		if err != nil {
			return domain.Message{}, fmt.Errorf("send message: %w", err)
		}
		if _, err := fw.Write(att.Data); err != nil {
			return domain.Message{}, fmt.Errorf("send message: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}

	path := fmt.Sprintf("/consultations/%d/messages/", consultationID)
	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return domain.Message{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var msg domain.Message
	if err := c.do(req, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (c *Client) Edit(ctx context.Context, consultationID int64, messageID, content string) (domain.Message, error) {
	path := fmt.Sprintf("/consultations/%d/messages/%s/", consultationID, messageID)
	payload, _ := json.Marshal(map[string]string{"content": content})
	req, err := c.newRequest(ctx, http.MethodPatch, path, bytes.NewReader(payload))
	if err != nil {
		return domain.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var msg domain.Message
	if err := c.do(req, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (c *Client) Delete(ctx context.Context, consultationID int64, messageID string) error {
	path := fmt.Sprintf("/consultations/%d/messages/%s/", consultationID, messageID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Attachment fetches the binary blob for a confirmed message id.
func (c *Client) Attachment(ctx context.Context, consultationID int64, messageID string) ([]byte, string, error) {
	path := fmt.Sprintf("/consultations/%d/messages/%s/attachment/", consultationID, messageID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if err := errs.StatusError(resp.StatusCode); err != nil {
		return nil, "", fmt.Errorf("fetch attachment: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch attachment: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// --- helpers ---

type messagePage struct {
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []domain.Message `json:"results"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dst)
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if err := errs.StatusError(resp.StatusCode); err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
