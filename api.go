package pasugo

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

	"github.com/klauspost/compress/gzhttp"

	"github.com/pasugo/pasugo-chat-go/auth"
	"github.com/pasugo/pasugo-chat-go/wire"
)

// APIClient talks to the Pasugo REST API. It works independently of the
// chat socket and is safe for concurrent use.
type APIClient struct {
	apiServer  string
	tokens     auth.TokenProvider
	httpClient *http.Client
}

// NewAPIClient creates a REST client rooted at apiServer
// (e.g. "https://api.pasugo.app/api"). A nil httpClient gets a 30s timeout
// and a transport that accepts compressed responses.
func NewAPIClient(apiServer string, tokens auth.TokenProvider, httpClient *http.Client) (*APIClient, error) {
	if apiServer == "" {
		return nil, fmt.Errorf("api server not configured")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider not configured")
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: gzhttp.Transport(http.DefaultTransport),
		}
	}
	return &APIClient{
		apiServer:  strings.TrimRight(apiServer, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// APIServer returns the base API server URL.
func (c *APIClient) APIServer() string { return c.apiServer }

// --------------------------------------------------------------------------
// Conversations
// --------------------------------------------------------------------------

// ResolveConversation returns the conversation for a task, creating it on
// first use. The backend makes this idempotent per task.
func (c *APIClient) ResolveConversation(ctx context.Context, taskID ID) (*Conversation, error) {
	var resp struct {
		Conversation
		AltID ID `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", map[string]ID{"task_id": taskID}, &resp, "conversation"); err != nil {
		return nil, err
	}
	conv := resp.Conversation
	if conv.ID == "" {
		conv.ID = resp.AltID
	}
	if conv.ID == "" {
		return nil, fmt.Errorf("resolve conversation: response without conversation_id")
	}
	if conv.TaskID == "" {
		conv.TaskID = taskID
	}
	return &conv, nil
}

// History returns the conversation's messages, oldest first.
func (c *APIClient) History(ctx context.Context, conversationID ID) ([]Message, error) {
	var msgs []Message
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID.String()), nil, &msgs, "messages"); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].Kind == "" {
			msgs[i].Kind = wire.KindText
		}
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	return msgs, nil
}

// --------------------------------------------------------------------------
// Tasks
// --------------------------------------------------------------------------

// GetTask fetches the current task snapshot.
func (c *APIClient) GetTask(ctx context.Context, taskID ID) (*TaskSnapshot, error) {
	var task TaskSnapshot
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID.String()), nil, &task, "task"); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// TaskAction invokes a lifecycle endpoint and returns the updated snapshot.
// body may be nil.
func (c *APIClient) TaskAction(ctx context.Context, taskID ID, action TaskAction, body any) (*TaskSnapshot, error) {
	var task TaskSnapshot
	path := "/tasks/" + url.PathEscape(taskID.String()) + "/" + string(action)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &task, "task"); err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = taskID
	}
	return &task, nil
}

// --------------------------------------------------------------------------
// HTTP helpers
// --------------------------------------------------------------------------

// authedRequest creates an HTTP request carrying the current access token.
func (c *APIClient) authedRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiServer+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON sends an authed request and decodes the JSON response into dest.
// When the body is an object carrying wrapKey, the value under wrapKey is
// decoded instead, so both bare and enveloped responses work.
func (c *APIClient) doJSON(ctx context.Context, method, path string, reqBody, dest any, wrapKey string) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.authedRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if dest == nil {
		return nil
	}

	if err := json.Unmarshal(unwrap(respBody, wrapKey), dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func unwrap(body []byte, key string) []byte {
	trimmed := bytes.TrimSpace(body)
	if key == "" || len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return trimmed
	}
	for _, k := range []string{key, "data"} {
		inner := bytes.TrimSpace(obj[k])
		if len(inner) > 0 && (inner[0] == '{' || inner[0] == '[') {
			return unwrap(inner, key)
		}
	}
	return trimmed
}
