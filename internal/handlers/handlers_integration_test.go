package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"acara/internal/handlers"
	"acara/internal/models"
	"acara/internal/repositories"
	"acara/internal/services"
	"acara/internal/storage"
)

// testApp bundles a fully wired Fiber app over an in-memory sqlite
// database and a temp-dir local image store.
type testApp struct {
	app      *fiber.App
	imageDir string
}

// setupApp wires the same stack as the composition root, minus the
// notification queue.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Event{}))

	imageDir := t.TempDir()
	images, err := storage.NewLocalStore(imageDir, "/images")
	require.NoError(t, err)

	userRepo := repositories.NewGORMUserRepository(db)
	eventRepo := repositories.NewGORMEventRepository(db)

	authService := services.NewAuthService(userRepo, "test_jwt_secret")
	eventService := services.NewEventService(eventRepo, images, nil)

	app := fiber.New(fiber.Config{BodyLimit: storage.MaxImageSize + 1<<20})
	handlers.NewAuthHandler(authService).RegisterRoutes(app)
	handlers.NewEventHandler(eventService, authService, images).RegisterRoutes(app)

	return &testApp{app: app, imageDir: imageDir}
}

type authResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    models.UserPublic `json:"user"`
}

type eventResponse struct {
	Message string       `json:"message"`
	Event   models.Event `json:"event"`
}

type listResponse struct {
	Events []models.Event `json:"events"`
	Count  int            `json:"count"`
}

func (ta *testApp) doJSON(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// doForm sends a multipart form, optionally with an image part of the
// given content type.
func (ta *testApp) doForm(t *testing.T, method, path, token string, fields map[string]string, imageType string, imageBytes []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if imageType != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="image"; filename="upload.bin"`)
		header.Set("Content-Type", imageType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(imageBytes)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (ta *testApp) doAuthed(t *testing.T, method, path, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (ta *testApp) signup(t *testing.T, email, password string) authResponse {
	t.Helper()
	resp, raw := ta.doJSON(t, http.MethodPost, "/users/signup", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "signup response: %s", raw)
	var out authResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func eventFields(title string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "a description",
		"address":     "some address",
		"date":        "2025-01-01",
	}
}

func TestAuthEndpoints(t *testing.T) {
	ta := setupApp(t)

	// Signup issues a token and never leaks the password hash.
	resp, raw := ta.doJSON(t, http.MethodPost, "/users/signup", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var signedUp authResponse
	require.NoError(t, json.Unmarshal(raw, &signedUp))
	assert.NotZero(t, signedUp.User.ID)
	assert.Equal(t, "a@x.com", signedUp.User.Email)
	assert.NotEmpty(t, signedUp.Token)
	assert.NotContains(t, string(raw), "password")

	// Duplicate signup conflicts and leaves the original intact.
	resp, _ = ta.doJSON(t, http.MethodPost, "/users/signup", map[string]string{
		"email": "a@x.com", "password": "different",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Invalid payloads.
	resp, _ = ta.doJSON(t, http.MethodPost, "/users/signup", map[string]string{
		"email": "not-an-email", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = ta.doJSON(t, http.MethodPost, "/users/signup", map[string]string{
		"email": "b@x.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Login with the original credentials still works, and issues a
	// token for the same user.
	resp, raw = ta.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loggedIn authResponse
	require.NoError(t, json.Unmarshal(raw, &loggedIn))
	assert.Equal(t, signedUp.User.ID, loggedIn.User.ID)
	assert.NotEmpty(t, loggedIn.Token)

	// Wrong password and unknown email both fail identically.
	resp, rawWrong := ta.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"email": "a@x.com", "password": "wrongpass",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, rawUnknown := ta.doJSON(t, http.MethodPost, "/users/login", map[string]string{
		"email": "nobody@x.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(rawWrong), string(rawUnknown))

	// Missing fields.
	resp, _ = ta.doJSON(t, http.MethodPost, "/users/login", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventEndpoints(t *testing.T) {
	ta := setupApp(t)

	alice := ta.signup(t, "alice@x.com", "secret1")
	bob := ta.signup(t, "bob@x.com", "secret2")

	// Mutations require a token.
	resp, _ := ta.doForm(t, http.MethodPost, "/events", "", eventFields("No Auth"), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = ta.doForm(t, http.MethodPost, "/events", "garbage.token.here", eventFields("Bad Token"), "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, "/events/my", nil)
	req.Header.Set("Authorization", "NotBearer xyz")
	malformed, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, malformed.StatusCode)

	// Alice creates two events; fields come back trimmed and owned.
	fields := eventFields("  Go Meetup  ")
	resp, raw := ta.doForm(t, http.MethodPost, "/events", alice.Token, fields, "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create response: %s", raw)
	var created eventResponse
	require.NoError(t, json.Unmarshal(raw, &created))
	first := created.Event
	assert.Equal(t, "Go Meetup", first.Title)
	assert.Equal(t, alice.User.ID, first.UserID)
	assert.NotZero(t, first.ID)

	resp, raw = ta.doForm(t, http.MethodPost, "/events", alice.Token, eventFields("Garage Sale"), "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &created))
	second := created.Event

	// Validation failures persist nothing.
	bad := eventFields("")
	resp, _ = ta.doForm(t, http.MethodPost, "/events", alice.Token, bad, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	bad = eventFields("Bad Date")
	bad["date"] = "not-a-date"
	resp, _ = ta.doForm(t, http.MethodPost, "/events", alice.Token, bad, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Public listing is newest-first.
	resp, raw = ta.doAuthed(t, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list listResponse
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, second.ID, list.Events[0].ID)
	assert.Equal(t, first.ID, list.Events[1].ID)

	// Single read is public.
	resp, raw = ta.doAuthed(t, http.MethodGet, fmt.Sprintf("/events/%d", first.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got eventResponse
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, first.Title, got.Event.Title)
	assert.Equal(t, first.UserID, got.Event.UserID)

	// /events/my is scoped to the caller.
	resp, raw = ta.doAuthed(t, http.MethodGet, "/events/my", bob.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, 0, list.Count)

	resp, raw = ta.doAuthed(t, http.MethodGet, "/events/my", alice.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, 2, list.Count)
	resp, _ = ta.doAuthed(t, http.MethodGet, "/events/my", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Search matches case-insensitively across fields.
	resp, raw = ta.doAuthed(t, http.MethodGet, "/events/search?q=garage", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Garage Sale", list.Events[0].Title)

	// Bob cannot touch Alice's events.
	resp, _ = ta.doForm(t, http.MethodPut, fmt.Sprintf("/events/%d", first.ID), bob.Token, eventFields("Hijacked"), "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = ta.doAuthed(t, http.MethodDelete, fmt.Sprintf("/events/%d", first.ID), bob.Token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The row is unchanged after the forbidden update.
	_, raw = ta.doAuthed(t, http.MethodGet, fmt.Sprintf("/events/%d", first.ID), "")
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "Go Meetup", got.Event.Title)

	// A nonexistent id is not-found for everyone, owner or not.
	resp, _ = ta.doForm(t, http.MethodPut, "/events/9999", bob.Token, eventFields("Ghost"), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The owner can update.
	resp, raw = ta.doForm(t, http.MethodPut, fmt.Sprintf("/events/%d", first.ID), alice.Token, eventFields("Go Meetup v2"), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "update response: %s", raw)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "Go Meetup v2", got.Event.Title)

	// The owner can delete, after which the event is gone.
	resp, _ = ta.doAuthed(t, http.MethodDelete, fmt.Sprintf("/events/%d", first.ID), alice.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ta.doAuthed(t, http.MethodGet, fmt.Sprintf("/events/%d", first.ID), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = ta.doAuthed(t, http.MethodDelete, fmt.Sprintf("/events/%d", first.ID), alice.Token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventImageLifecycle(t *testing.T) {
	ta := setupApp(t)
	alice := ta.signup(t, "alice@x.com", "secret1")

	imageBytes := []byte("fake png content")

	// Create with an image; the response carries a retrievable URL.
	resp, raw := ta.doForm(t, http.MethodPost, "/events", alice.Token, eventFields("Picture Day"), "image/png", imageBytes)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create response: %s", raw)
	var created eventResponse
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Contains(t, created.Event.Image, "/images/event-")
	assert.Len(t, listFiles(t, ta.imageDir), 1)

	// Replacing the image removes the old file.
	resp, raw = ta.doForm(t, http.MethodPut, fmt.Sprintf("/events/%d", created.Event.ID), alice.Token, eventFields("Picture Day"), "image/png", imageBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode, "update response: %s", raw)
	var updated eventResponse
	require.NoError(t, json.Unmarshal(raw, &updated))
	assert.NotEqual(t, created.Event.Image, updated.Event.Image)
	assert.Len(t, listFiles(t, ta.imageDir), 1)

	// Updating without an image keeps the current one.
	resp, raw = ta.doForm(t, http.MethodPut, fmt.Sprintf("/events/%d", created.Event.ID), alice.Token, eventFields("Picture Day v2"), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var kept eventResponse
	require.NoError(t, json.Unmarshal(raw, &kept))
	assert.Equal(t, updated.Event.Image, kept.Event.Image)

	// Disallowed MIME type.
	resp, _ = ta.doForm(t, http.MethodPost, "/events", alice.Token, eventFields("Text Upload"), "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	// Deleting the event removes the stored image.
	resp, _ = ta.doAuthed(t, http.MethodDelete, fmt.Sprintf("/events/%d", created.Event.ID), alice.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, listFiles(t, ta.imageDir))
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
