package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orderdesk/apiserver/internal/services"
	"github.com/orderdesk/apiserver/internal/storage"
	"github.com/orderdesk/apiserver/internal/store"
	"github.com/orderdesk/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testMaxUploadBytes = 64

type testAPI struct {
	router    http.Handler
	tokens    *services.TokenService
	users     *store.FileUserRepository
	orders    *store.FileOrderRepository
	uploadDir string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	dir := t.TempDir()
	fs, err := store.NewFileStore(filepath.Join(dir, "data.json"))
	require.NoError(t, err)
	uploadDir := filepath.Join(dir, "uploads")
	disk, err := storage.NewLocalDisk(uploadDir)
	require.NoError(t, err)
	objects := storage.NewStorage(disk)
	require.NoError(t, objects.EnsureBucket(context.Background()))

	users := store.NewFileUserRepository(fs)
	orders := store.NewFileOrderRepository(fs)
	tokens := services.NewTokenService("test-secret", time.Hour)
	images := services.NewImageUploader(objects)
	userService := services.NewUserService(users, tokens)
	orderService := services.NewOrderService(orders, images, nil)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		AuthRouter(r, userService, tokens)
		r.Route("/orders", func(r chi.Router) {
			OrderRouter(r, orderService, RequireAuth(tokens), testMaxUploadBytes)
		})
	})
	r.Route("/uploads", func(r chi.Router) {
		UploadRouter(r, images)
	})

	return &testAPI{
		router:    r,
		tokens:    tokens,
		users:     users,
		orders:    orders,
		uploadDir: uploadDir,
	}
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

// createUser stores a user directly and returns a token for it.
func (a *testAPI) createUser(t *testing.T, username, role string) (types.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := a.users.Create(context.Background(), types.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	})
	require.NoError(t, err)
	token, err := a.tokens.Issue(user)
	require.NoError(t, err)
	return user, token
}

type formFile struct {
	field    string
	filename string
	content  string
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func validOrderFields() map[string]string {
	return map[string]string{
		"item":            "Lamp",
		"deliveryAddress": "1 Main St",
		"quantity":        "2",
		"phone":           "0123456789",
		"notes":           "ring twice",
		"agree":           "true",
	}
}

func (a *testAPI) sendOrderForm(t *testing.T, method, path, token string, fields map[string]string, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.do(req)
}

func (a *testAPI) authed(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&v))
	return v
}
