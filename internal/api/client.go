// Package api is the REST client for the chat backend's collaborator
// endpoints: app management, chat history and user session. Every endpoint
// wraps its payload in a `{code, data, message}` envelope; code 0 is success
// and code 40100 means the caller holds no valid login session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// codeOK and codeNotAuthenticated are the envelope codes the client
// interprets; everything else surfaces as an APIError.
const (
	codeOK               = 0
	codeNotAuthenticated = 40100
)

// ErrNotAuthenticated is returned when the backend rejects the request with
// envelope code 40100. Callers should redirect to login.
var ErrNotAuthenticated = errors.New("api: not authenticated")

// APIError is a non-zero envelope code other than the authentication
// rejection.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: backend error %d: %s", e.Code, e.Message)
}

// response is the backend's uniform envelope.
type response[T any] struct {
	Code    int    `json:"code"`
	Data    T      `json:"data"`
	Message string `json:"message"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Current int64 `json:"current"`
	Size    int64 `json:"size"`
}

// App is a configured chat application.
type App struct {
	ID          int64  `json:"id"`
	Name        string `json:"appName"`
	Description string `json:"appDesc"`
	InitPrompt  string `json:"initPrompt,omitempty"`
	CreateTime  string `json:"createTime,omitempty"`
	UpdateTime  string `json:"updateTime,omitempty"`
}

// User is the authenticated backend user.
type User struct {
	ID      int64  `json:"id"`
	Account string `json:"userAccount"`
	Name    string `json:"userName"`
	Role    string `json:"userRole"`
}

// ChatMessage is one persisted chat turn.
type ChatMessage struct {
	ID         int64  `json:"id"`
	AppID      int64  `json:"appId"`
	Role       string `json:"messageType"`
	Content    string `json:"message"`
	CreateTime string `json:"createTime,omitempty"`
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithToken sets a bearer token attached to every request.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// Client talks to the backend REST API. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates a Client for the given base URL. baseURL must be
// non-empty.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: baseURL must not be empty")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Login authenticates and returns the user. The backend tracks the session
// via cookie; callers wanting cookie persistence pass a client with a jar.
func (c *Client) Login(ctx context.Context, account, password string) (User, error) {
	body := map[string]string{"userAccount": account, "userPassword": password}
	return doJSON[User](ctx, c, http.MethodPost, "/api/user/login", body)
}

// CurrentUser returns the logged-in user, or ErrNotAuthenticated.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	return doJSON[User](ctx, c, http.MethodGet, "/api/user/current", nil)
}

// GetApp fetches one app by ID.
func (c *Client) GetApp(ctx context.Context, id int64) (App, error) {
	return doJSON[App](ctx, c, http.MethodGet, "/api/app/get?id="+strconv.FormatInt(id, 10), nil)
}

// ListApps fetches one page of the caller's apps.
func (c *Client) ListApps(ctx context.Context, current, pageSize int64) (Page[App], error) {
	body := map[string]int64{"current": current, "pageSize": pageSize}
	return doJSON[Page[App]](ctx, c, http.MethodPost, "/api/app/list/page", body)
}

// CreateApp creates an app and returns its new ID.
func (c *Client) CreateApp(ctx context.Context, app App) (int64, error) {
	return doJSON[int64](ctx, c, http.MethodPost, "/api/app/add", app)
}

// UpdateApp updates an existing app.
func (c *Client) UpdateApp(ctx context.Context, app App) error {
	_, err := doJSON[bool](ctx, c, http.MethodPost, "/api/app/update", app)
	return err
}

// DeleteApp removes an app by ID.
func (c *Client) DeleteApp(ctx context.Context, id int64) error {
	_, err := doJSON[bool](ctx, c, http.MethodPost, "/api/app/delete", map[string]int64{"id": id})
	return err
}

// ChatHistory fetches one page of an app's persisted chat turns, newest
// first.
func (c *Client) ChatHistory(ctx context.Context, appID, current, pageSize int64) (Page[ChatMessage], error) {
	q := url.Values{}
	q.Set("appId", strconv.FormatInt(appID, 10))
	q.Set("current", strconv.FormatInt(current, 10))
	q.Set("pageSize", strconv.FormatInt(pageSize, 10))
	return doJSON[Page[ChatMessage]](ctx, c, http.MethodGet, "/api/chat/history?"+q.Encode(), nil)
}

// doJSON performs one request and unwraps the envelope.
func doJSON[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env response[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("api: decode response: %w", err)
	}
	switch env.Code {
	case codeOK:
		return env.Data, nil
	case codeNotAuthenticated:
		return zero, ErrNotAuthenticated
	default:
		return zero, &APIError{Code: env.Code, Message: env.Message}
	}
}
