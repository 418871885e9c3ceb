package client

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

	"github.com/ayush/personal-library/internal/models"
	"github.com/ayush/personal-library/internal/response"
)

// ErrSignedOut is returned by protected calls when no identity is held.
var ErrSignedOut = errors.New("not signed in")

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the library API on behalf of one user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *Session
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		session:    NewSession(),
	}
}

// Session returns the holder of the signed-in identity.
func (c *Client) Session() *Session { return c.session }

// Register creates an account and signs in as it.
func (c *Client) Register(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", email, password)
}

// Login signs in with existing credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*models.AuthResponse, error) {
	var res models.AuthResponse
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, path, "", body, &res); err != nil {
		return nil, err
	}
	c.session.Set(Identity{Token: res.Token, UserID: res.ID, Email: res.Email, ExpiresAt: res.ExpiresAt})
	return &res, nil
}

// Logout revokes the token server side and always forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	id, ok := c.session.Current()
	c.session.Clear()
	if !ok {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", id.Token, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil
	}
	return err
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.authed(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateBook adds a book to the signed-in user's library.
func (c *Client) CreateBook(ctx context.Context, in models.BookInput) (*models.Book, error) {
	var b models.Book
	if err := c.authed(ctx, http.MethodPost, "/api/books", in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks lists the signed-in user's books.
func (c *Client) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	path := "/api/books"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list []models.Book
	if err := c.authed(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetBook fetches one book.
func (c *Client) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var b models.Book
	if err := c.authed(ctx, http.MethodGet, "/api/books/"+url.PathEscape(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBook replaces a book's editable fields.
func (c *Client) UpdateBook(ctx context.Context, id string, in models.BookInput) (*models.Book, error) {
	var b models.Book
	if err := c.authed(ctx, http.MethodPut, "/api/books/"+url.PathEscape(id), in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBook removes a book.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.authed(ctx, http.MethodDelete, "/api/books/"+url.PathEscape(id), nil, nil)
}

// authed performs a call with the held token. A 401 clears the session.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	id, ok := c.session.Current()
	if !ok {
		return ErrSignedOut
	}
	err := c.do(ctx, method, path, id.Token, in, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.session.Clear()
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkResp(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// checkResp turns a non-2xx response into an *APIError.
func checkResp(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	var body response.ErrorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
