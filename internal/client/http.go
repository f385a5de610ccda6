package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/models"
)

// APIError is a non-2xx answer other than 401.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Session is what signup and login hand back.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// HTTPAPI talks to the server's /v1 routes with a bearer token.
type HTTPAPI struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewHTTPAPI(baseURL string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *HTTPAPI) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *HTTPAPI) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *HTTPAPI) Signup(ctx context.Context, email, password, fullName string) (*Session, error) {
	return a.authenticate(ctx, "/v1/auth/signup", map[string]string{
		"email": email, "password": password, "full_name": fullName,
	})
}

func (a *HTTPAPI) Login(ctx context.Context, email, password string) (*Session, error) {
	return a.authenticate(ctx, "/v1/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

func (a *HTTPAPI) authenticate(ctx context.Context, path string, body map[string]string) (*Session, error) {
	var s Session
	if err := a.doJSON(ctx, http.MethodPost, path, body, &s); err != nil {
		return nil, err
	}
	a.SetToken(s.Token)
	return &s, nil
}

func (a *HTTPAPI) ListUsers(ctx context.Context, query string) (*models.Roster, error) {
	path := "/v1/users"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var r models.Roster
	if err := a.doJSON(ctx, http.MethodGet, path, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (a *HTTPAPI) History(ctx context.Context, peerID uuid.UUID) ([]models.MessageView, error) {
	var views []models.MessageView
	if err := a.doJSON(ctx, http.MethodGet, "/v1/messages/"+peerID.String(), nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Send posts multipart form data, the same shape a browser form produces.
func (a *HTTPAPI) Send(ctx context.Context, peerID uuid.UUID, text string, image *media.Object) (*models.MessageView, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("text", text); err != nil {
		return nil, fmt.Errorf("write text field: %w", err)
	}
	if image != nil {
		name := image.Filename
		if name == "" {
			name = "image"
		}
		part, err := mw.CreateFormFile("image", name)
		if err != nil {
			return nil, fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(image.Data); err != nil {
			return nil, fmt.Errorf("write image part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, "/v1/messages/"+peerID.String(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var view models.MessageView
	if err := a.do(req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *HTTPAPI) MarkSeen(ctx context.Context, messageID uuid.UUID) error {
	return a.doJSON(ctx, http.MethodPut, "/v1/messages/"+messageID.String()+"/seen", nil, nil)
}

func (a *HTTPAPI) MarkAllSeen(ctx context.Context, peerID uuid.UUID) error {
	return a.doJSON(ctx, http.MethodPut, "/v1/conversations/"+peerID.String()+"/seen", nil, nil)
}

func (a *HTTPAPI) doJSON(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := a.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.do(req, out)
}

func (a *HTTPAPI) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (a *HTTPAPI) do(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
