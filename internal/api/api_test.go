package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/auth"
	"github.com/sinchita-code/quickchat/internal/chat"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/models"
	"github.com/sinchita-code/quickchat/internal/presence"
	"github.com/sinchita-code/quickchat/internal/repository/memory"
	"github.com/sinchita-code/quickchat/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testAPI struct {
	router   *gin.Engine
	messages *memory.MessageStore
	media    *media.MemoryStore
	health   error
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := memory.NewUserStore()
	messages := memory.NewMessageStore()
	store := media.NewMemoryStore("http://localhost:5000")
	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, nil, logger)

	ta := &testAPI{messages: messages, media: store}
	ta.router = NewRouter(Deps{
		Users:         users,
		Chat:          chat.NewService(users, messages, store, registry, nil, logger, 1024),
		Tokens:        auth.NewTokens("secret", time.Hour),
		Media:         store,
		Files:         store,
		Hub:           hub,
		MaxImageBytes: 1024,
		Logger:        logger,
		Health:        func(context.Context) error { return ta.health },
	})
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

type session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (ta *testAPI) signup(t *testing.T, email, name string) session {
	t.Helper()
	w := ta.do(t, http.MethodPost, "/v1/auth/signup", "", gin.H{
		"email": email, "password": "secret123", "full_name": name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var s session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.NotEmpty(t, s.Token)
	return s
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAuthFlow(t *testing.T) {
	ta := newTestAPI(t)
	alice := ta.signup(t, "Alice@Example.com", "Alice")
	assert.Equal(t, "alice@example.com", alice.User.Email)
	assert.NotContains(t, ta.do(t, http.MethodGet, "/v1/auth/check", alice.Token, nil).Body.String(), "password")

	tests := []struct {
		name string
		path string
		body gin.H
		want int
	}{
		{"duplicate email", "/v1/auth/signup", gin.H{"email": "alice@example.com", "password": "secret123", "full_name": "A2"}, http.StatusConflict},
		{"short password", "/v1/auth/signup", gin.H{"email": "b@example.com", "password": "123", "full_name": "B"}, http.StatusBadRequest},
		{"five char password", "/v1/auth/signup", gin.H{"email": "b@example.com", "password": "12345", "full_name": "B"}, http.StatusBadRequest},
		{"six char password", "/v1/auth/signup", gin.H{"email": "c@example.com", "password": "123456", "full_name": "C"}, http.StatusCreated},
		{"missing name", "/v1/auth/signup", gin.H{"email": "b@example.com", "password": "secret123"}, http.StatusBadRequest},
		{"login ok", "/v1/auth/login", gin.H{"email": "alice@example.com", "password": "secret123"}, http.StatusOK},
		{"login wrong password", "/v1/auth/login", gin.H{"email": "alice@example.com", "password": "nope12345"}, http.StatusUnauthorized},
		{"login unknown email", "/v1/auth/login", gin.H{"email": "who@example.com", "password": "secret123"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ta.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("check", func(t *testing.T) {
		w := ta.do(t, http.MethodGet, "/v1/auth/check", alice.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, alice.User.ID, decode[models.User](t, w).ID)

		assert.Equal(t, http.StatusUnauthorized, ta.do(t, http.MethodGet, "/v1/auth/check", "", nil).Code)
		assert.Equal(t, http.StatusUnauthorized, ta.do(t, http.MethodGet, "/v1/auth/check", "garbage", nil).Code)
	})
}

func TestMessageFlow(t *testing.T) {
	ta := newTestAPI(t)
	alice := ta.signup(t, "alice@example.com", "Alice")
	bob := ta.signup(t, "bob@example.com", "Bob")
	toBob := "/v1/messages/" + bob.User.ID.String()
	toAlice := "/v1/messages/" + alice.User.ID.String()

	w := ta.do(t, http.MethodPost, toBob, alice.Token, gin.H{"text": "hi bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sent := decode[models.MessageView](t, w)
	assert.Equal(t, "hi bob", sent.Text)
	assert.False(t, sent.Delivered, "bob has no socket")
	assert.Equal(t, "Alice", sent.Sender.FullName)

	// bob's roster shows one unseen from alice
	w = ta.do(t, http.MethodGet, "/v1/users", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	roster := decode[models.Roster](t, w)
	require.Len(t, roster.Users, 1)
	assert.Equal(t, alice.User.ID, roster.Users[0].ID)
	assert.False(t, roster.Users[0].Online)
	assert.Equal(t, 1, roster.Unseen[alice.User.ID])

	// opening the conversation marks it seen
	w = ta.do(t, http.MethodGet, toAlice, bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]models.MessageView](t, w)
	require.Len(t, history, 1)
	assert.True(t, history[0].Seen)

	roster = decode[models.Roster](t, ta.do(t, http.MethodGet, "/v1/users", bob.Token, nil))
	assert.Empty(t, roster.Unseen)

	// explicit acks
	w = ta.do(t, http.MethodPost, toAlice, bob.Token, gin.H{"text": "hey"})
	require.Equal(t, http.StatusCreated, w.Code)
	reply := decode[models.MessageView](t, w)

	w = ta.do(t, http.MethodPut, "/v1/messages/"+reply.ID.String()+"/seen", bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "only the receiver can ack")

	w = ta.do(t, http.MethodPut, "/v1/messages/"+reply.ID.String()+"/seen", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":true}`, w.Body.String())

	w = ta.do(t, http.MethodPost, toAlice, bob.Token, gin.H{"text": "again"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ta.do(t, http.MethodPut, "/v1/conversations/"+bob.User.ID.String()+"/seen", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())
}

func TestSend_Errors(t *testing.T) {
	ta := newTestAPI(t)
	alice := ta.signup(t, "alice@example.com", "Alice")
	bob := ta.signup(t, "bob@example.com", "Bob")
	toBob := "/v1/messages/" + bob.User.ID.String()

	tests := []struct {
		name string
		path string
		body gin.H
		want int
	}{
		{"empty message", toBob, gin.H{"text": "  "}, http.StatusBadRequest},
		{"bad receiver id", "/v1/messages/not-a-uuid", gin.H{"text": "hi"}, http.StatusBadRequest},
		{"unknown receiver", "/v1/messages/" + uuid.NewString(), gin.H{"text": "hi"}, http.StatusNotFound},
		{"bad data uri", toBob, gin.H{"image": "not-a-data-uri"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ta.do(t, http.MethodPost, tt.path, alice.Token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	msgs, err := ta.messages.ListConversation(context.Background(), alice.User.ID, bob.User.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func multipartBody(t *testing.T, text string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if text != "" {
		require.NoError(t, mw.WriteField("text", text))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "pic.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSend_Multipart(t *testing.T) {
	ta := newTestAPI(t)
	alice := ta.signup(t, "alice@example.com", "Alice")
	bob := ta.signup(t, "bob@example.com", "Bob")

	send := func(text string, image []byte) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, text, image)
		req := httptest.NewRequest(http.MethodPost, "/v1/messages/"+bob.User.ID.String(), body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+alice.Token)
		w := httptest.NewRecorder()
		ta.router.ServeHTTP(w, req)
		return w
	}

	w := send("look", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[models.MessageView](t, w)
	require.NotNil(t, view.Image)
	assert.True(t, strings.HasPrefix(*view.Image, "http://localhost:5000/media/"))

	// the stored image is served back
	mediaPath := strings.TrimPrefix(*view.Image, "http://localhost:5000")
	mw := httptest.NewRecorder()
	ta.router.ServeHTTP(mw, httptest.NewRequest(http.MethodGet, mediaPath, nil))
	assert.Equal(t, http.StatusOK, mw.Code)
	assert.Equal(t, pngBytes, mw.Body.Bytes())

	assert.Equal(t, http.StatusBadRequest, send("", nil).Code, "no text and no image")
	assert.Equal(t, http.StatusBadRequest, send("", []byte("plain text file")).Code, "not an image")
	big := append(append([]byte{}, pngBytes...), make([]byte, 2048)...)
	assert.Equal(t, http.StatusBadRequest, send("", big).Code, "too large")
	assert.Equal(t, 1, ta.media.Len(), "rejected images are never uploaded")
}

func TestUpdateProfile(t *testing.T) {
	ta := newTestAPI(t)
	alice := ta.signup(t, "alice@example.com", "Alice")

	pic := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	w := ta.do(t, http.MethodPut, "/v1/users/me", alice.Token, gin.H{"bio": "hello", "profile_pic": pic})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	user := decode[models.User](t, w)
	assert.Equal(t, "Alice", user.FullName, "omitted name is kept")
	assert.Equal(t, "hello", user.Bio)
	require.NotNil(t, user.ProfilePic)
	assert.True(t, strings.HasPrefix(*user.ProfilePic, "http://localhost:5000/media/"))

	w = ta.do(t, http.MethodPut, "/v1/users/me", alice.Token, gin.H{"full_name": "Alice B"})
	require.Equal(t, http.StatusOK, w.Code)
	user = decode[models.User](t, w)
	assert.Equal(t, "Alice B", user.FullName)
	require.NotNil(t, user.ProfilePic, "avatar survives updates that omit it")

	assert.Equal(t, http.StatusBadRequest,
		ta.do(t, http.MethodPut, "/v1/users/me", alice.Token, gin.H{"full_name": " "}).Code)
	assert.Equal(t, http.StatusBadRequest,
		ta.do(t, http.MethodPut, "/v1/users/me", alice.Token, gin.H{"profile_pic": "data:text/plain;base64,aGVsbG8="}).Code)
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t)
	assert.Equal(t, http.StatusOK, ta.do(t, http.MethodGet, "/v1/health", "", nil).Code)

	ta.health = errors.New("pool closed")
	assert.Equal(t, http.StatusServiceUnavailable, ta.do(t, http.MethodGet, "/v1/health", "", nil).Code)

	w := ta.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quickchat_http_requests_total")
}
