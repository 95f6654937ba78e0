package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/media"
	"social-go/internal/models"
	"social-go/internal/security"
)

const password = "hunter22"

type testAPI struct {
	t       *testing.T
	handler http.Handler
	db      *db.DB
	hub     *events.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	database, err := db.Init("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.Default()
	cfg.SuperAdmins = []string{"root"}
	cfg.UploadDir = t.TempDir()

	hub := events.NewHub(16)
	t.Cleanup(hub.Close)
	sessions := security.NewSessionStore(database, "test-secret", time.Hour)
	files := media.NewStore(cfg.UploadDir, 1<<20)

	return &testAPI{
		t:       t,
		handler: Setup(cfg, database, sessions, hub, files, log.New(io.Discard)),
		db:      database,
		hub:     hub,
	}
}

func (a *testAPI) request(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	return a.request(method, path, token, r, "application/json")
}

func (a *testAPI) invite(code string) {
	require.NoError(a.t, a.db.CreateInviteCode(context.Background(), &models.InviteCode{Code: code, CreatedBy: "root"}))
}

// signup registers username with a fresh invite and returns its token.
func (a *testAPI) signup(username string) string {
	a.t.Helper()
	code := "INV-" + strings.ToUpper(username)
	a.invite(code)
	rec := a.do("POST", "/api/register", "", map[string]string{
		"username": username, "password": password, "inviteCode": code,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](a.t, rec)["token"].(string)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rec)["error"]
}

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// noisyPNG encodes random pixels, which PNG cannot compress.
func noisyPNG(t *testing.T, w, h int) []byte {
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (io.Reader, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = a.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterConsumesInvite(t *testing.T) {
	a := newTestAPI(t)
	a.invite("ABC123")

	rec := a.do("POST", "/api/register", "", map[string]string{"username": "carol", "password": password, "inviteCode": "ABC123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, "carol", resp["username"])
	assert.NotEmpty(t, resp["token"])

	invite, err := a.db.GetInviteCode(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.True(t, invite.Used)
	assert.Equal(t, "carol", invite.UsedBy)

	rec = a.do("POST", "/api/register", "", map[string]string{"username": "dave", "password": password, "inviteCode": "ABC123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do("POST", "/api/register", "", map[string]string{"username": "dave", "password": password, "inviteCode": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	a := newTestAPI(t)
	a.invite("ABC123")

	rec := a.do("POST", "/api/register", "", map[string]string{"username": "  ", "password": password, "inviteCode": "ABC123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "All fields required.", errorOf(t, rec))

	rec = a.do("POST", "/api/register", "", map[string]string{"username": "carol", "password": "123", "inviteCode": "ABC123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do("POST", "/api/register", "", map[string]string{"username": "no spaces", "password": password, "inviteCode": "ABC123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request("POST", "/api/register", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginAndLogout(t *testing.T) {
	a := newTestAPI(t)
	a.signup("alice")

	rec := a.do("POST", "/api/login", "", map[string]string{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid username or password", errorOf(t, rec))

	rec = a.do("POST", "/api/login", "", map[string]string{"username": "nobody", "password": password})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do("POST", "/api/login", "", map[string]string{"username": "alice", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[map[string]any](t, rec)["token"].(string)

	rec = a.do("GET", "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, false, me["isSuperAdmin"])
	assert.NotContains(t, rec.Body.String(), "password")

	assert.Equal(t, http.StatusUnauthorized, a.do("GET", "/api/me", "", nil).Code)

	require.Equal(t, http.StatusOK, a.do("POST", "/api/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do("GET", "/api/me", token, nil).Code)
}

func TestFeed(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")

	rec := a.do("POST", "/api/posts", alice, map[string]string{"content": "  hello world  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[models.Post](t, rec)
	assert.Equal(t, "hello world", post.Content)
	assert.Equal(t, "alice", post.Author)

	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/posts", alice, map[string]string{"content": ""}).Code)
	long := strings.Repeat("x", models.MaxPostLength+1)
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/posts", alice, map[string]string{"content": long}).Code)

	rec = a.do("POST", "/api/posts/"+post.ID+"/likes", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"active": true, "count": float64(1)}, decode[map[string]any](t, rec))
	rec = a.do("POST", "/api/posts/"+post.ID+"/loves", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do("GET", "/api/posts", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[[]models.Post](t, rec)
	require.Len(t, feed, 1)
	assert.Equal(t, 1, feed[0].Likes)
	assert.Equal(t, 1, feed[0].Loves)
	assert.True(t, feed[0].LikedByMe)
	assert.False(t, feed[0].LovedByMe)

	rec = a.do("POST", "/api/posts/"+post.ID+"/likes", bob, nil)
	assert.Equal(t, map[string]any{"active": false, "count": float64(0)}, decode[map[string]any](t, rec))

	assert.Equal(t, http.StatusForbidden, a.do("PUT", "/api/posts/"+post.ID, bob, map[string]string{"content": "mine now"}).Code)
	rec = a.do("PUT", "/api/posts/"+post.ID, alice, map[string]string{"content": "edited"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", decode[models.Post](t, rec).Content)

	assert.Equal(t, http.StatusForbidden, a.do("DELETE", "/api/posts/"+post.ID, bob, nil).Code)
	require.Equal(t, http.StatusOK, a.do("DELETE", "/api/posts/"+post.ID, alice, nil).Code)

	rec = a.do("GET", "/api/posts", bob, nil)
	assert.Empty(t, decode[[]models.Post](t, rec))

	rec = a.do("GET", "/api/posts/"+post.ID, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Post](t, rec).Deleted)

	assert.Equal(t, http.StatusNotFound, a.do("POST", "/api/posts/"+post.ID+"/likes", bob, nil).Code)
	assert.Equal(t, http.StatusConflict, a.do("PUT", "/api/posts/"+post.ID, alice, map[string]string{"content": "again"}).Code)
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/api/posts/missing", bob, nil).Code)
}

func TestComments(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")

	post := decode[models.Post](t, a.do("POST", "/api/posts", alice, map[string]string{"content": "discuss"}))

	rec := a.do("POST", "/api/posts/"+post.ID+"/comments", bob, map[string]string{"text": "first"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[models.Comment](t, rec)
	rec = a.do("POST", "/api/posts/"+post.ID+"/comments", alice, map[string]string{"text": "second"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tooLong := strings.Repeat("y", models.MaxCommentLength+1)
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/posts/"+post.ID+"/comments", bob, map[string]string{"text": tooLong}).Code)

	rec = a.do("GET", "/api/posts/"+post.ID+"/comments", alice, nil)
	comments := decode[[]models.Comment](t, rec)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Text)

	path := "/api/posts/" + post.ID + "/comments/" + first.ID
	assert.Equal(t, http.StatusForbidden, a.do("PUT", path, alice, map[string]string{"text": "hijack"}).Code)
	rec = a.do("PUT", path, bob, map[string]string{"text": "first!"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "first!", decode[models.Comment](t, rec).Text)

	assert.Equal(t, http.StatusForbidden, a.do("DELETE", path, alice, nil).Code)
	require.Equal(t, http.StatusOK, a.do("DELETE", path, bob, nil).Code)

	rec = a.do("GET", "/api/posts/"+post.ID+"/comments", alice, nil)
	assert.Len(t, decode[[]models.Comment](t, rec), 1)
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/api/posts/nope/comments", alice, nil).Code)
}

func TestDirectMessages(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")
	a.signup("carol")

	rec := a.do("GET", "/api/users", alice, nil)
	assert.ElementsMatch(t, []string{"bob", "carol"}, decode[[]string](t, rec))

	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/dms/alice/messages", alice, map[string]string{"text": "me"}).Code)
	assert.Equal(t, http.StatusNotFound, a.do("POST", "/api/dms/ghost/messages", alice, map[string]string{"text": "boo"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do("POST", "/api/dms/bob/messages", alice, map[string]string{"text": " "}).Code)

	rec = a.do("POST", "/api/dms/bob/messages", alice, map[string]string{"text": "hi bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[models.DirectMessage](t, rec)
	assert.Equal(t, "alice_bob", first.ConversationID)

	require.Equal(t, http.StatusCreated, a.do("POST", "/api/dms/alice/messages", bob, map[string]string{"text": "hi alice"}).Code)

	rec = a.do("GET", "/api/dms/alice/messages", bob, nil)
	msgs := decode[[]models.DirectMessage](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi bob", msgs[0].Text)

	rec = a.do("GET", "/api/dms/bob/messages?since="+first.ID, alice, nil)
	msgs = decode[[]models.DirectMessage](t, rec)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi alice", msgs[0].Text)

	rec = a.do("GET", "/api/dms", alice, nil)
	convos := decode[[]models.Conversation](t, rec)
	require.Len(t, convos, 1)
	assert.Equal(t, "bob", convos[0].With)
	assert.Equal(t, "hi alice", convos[0].LastMessage.Text)
}

func TestGroups(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")
	carol := a.signup("carol")

	rec := a.do("POST", "/api/groups", alice, map[string]string{"name": "book club"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	group := decode[models.Group](t, rec)
	assert.Equal(t, []string{"alice"}, group.Members)

	assert.Equal(t, http.StatusConflict, a.do("POST", "/api/groups", bob, map[string]string{"name": "book club"}).Code)

	base := "/api/groups/" + group.ID
	assert.Equal(t, http.StatusForbidden, a.do("GET", base, bob, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do("POST", base+"/members", bob, map[string]string{"username": "bob"}).Code)
	assert.Equal(t, http.StatusNotFound, a.do("POST", base+"/members", alice, map[string]string{"username": "ghost"}).Code)

	require.Equal(t, http.StatusOK, a.do("POST", base+"/members", alice, map[string]string{"username": "bob"}).Code)
	rec = a.do("POST", base+"/members", alice, map[string]string{"username": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"alice", "bob"}, decode[models.Group](t, rec).Members)

	rec = a.do("POST", base+"/messages", bob, map[string]string{"text": "chapter 3?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusForbidden, a.do("POST", base+"/messages", carol, map[string]string{"text": "let me in"}).Code)
	assert.Equal(t, http.StatusForbidden, a.do("GET", base+"/messages", carol, nil).Code)

	rec = a.do("GET", base+"/messages", alice, nil)
	msgs := decode[[]models.GroupMessage](t, rec)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].Author)

	rec = a.do("GET", "/api/groups", bob, nil)
	assert.Len(t, decode[[]models.Group](t, rec), 1)
	rec = a.do("GET", "/api/groups", carol, nil)
	assert.Empty(t, decode[[]models.Group](t, rec))
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/api/groups/unknown", alice, nil).Code)
}

func TestProfile(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")

	assert.Equal(t, http.StatusNotFound, a.do("GET", "/api/profiles/ghost", alice, nil).Code)

	rec := a.do("PUT", "/api/profile/bio", alice, map[string]string{"bio": "gardener"})
	require.Equal(t, http.StatusOK, rec.Code)
	tooLong := strings.Repeat("b", models.MaxBioLength+1)
	assert.Equal(t, http.StatusBadRequest, a.do("PUT", "/api/profile/bio", alice, map[string]string{"bio": tooLong}).Code)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 400, 300))
	rec = a.do("POST", "/api/profile/avatar", alice, map[string]string{"avatar": dataURL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body, contentType := multipartBody(t, "avatar", "me.png", pngBytes(t, 64, 64))
	rec = a.request("POST", "/api/profile/avatar", alice, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do("POST", "/api/profile/avatar", alice, map[string]string{"avatar": base64.StdEncoding.EncodeToString([]byte("not an image"))})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do("GET", "/api/profiles/alice", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[models.User](t, rec)
	assert.Equal(t, "gardener", profile.Bio)
	assert.NotEmpty(t, profile.Avatar)

	logs, err := a.db.ListLogs(context.Background(), 10)
	require.NoError(t, err)
	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, models.ActionBioUpdated)
	assert.Contains(t, actions, models.ActionAvatarUpdated)
}

func TestLargeJSONAvatar(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")

	body, err := json.Marshal(map[string]string{
		"avatar": "data:image/png;base64," + base64.StdEncoding.EncodeToString(noisyPNG(t, 700, 700)),
	})
	require.NoError(t, err)
	require.Greater(t, len(body), 1<<20)

	rec := a.request("POST", "/api/profile/avatar", alice, bytes.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[models.User](t, rec).Avatar)

	huge := `{"avatar":"` + strings.Repeat("a", 9<<20) + `"}`
	rec = a.request("POST", "/api/profile/avatar", alice, strings.NewReader(huge), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMedia(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")

	body, contentType := multipartBody(t, "file", "photo.png", pngBytes(t, 8, 8))
	rec := a.request("POST", "/api/media", alice, body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	upload := decode[models.Media](t, rec)
	assert.Equal(t, "image/png", upload.ContentType)
	assert.True(t, strings.HasPrefix(upload.URL, "/uploads/"))
	assert.NotEqual(t, "photo.png", upload.Filename)

	body, contentType = multipartBody(t, "file", "notes.txt", []byte("plain text is not media"))
	rec = a.request("POST", "/api/media", alice, body, contentType)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = a.do("GET", "/api/media", alice, nil)
	files := decode[[]models.Media](t, rec)
	require.Len(t, files, 1)
	assert.Equal(t, upload.URL, files[0].URL)

	rec = a.do("GET", upload.URL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/uploads/", "", nil).Code, "upload dir is not listed")

	rec = a.do("POST", "/api/posts", bob, map[string]string{"content": "stolen", "image": upload.URL})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do("POST", "/api/posts", alice, map[string]string{"content": "look", "video": upload.URL})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do("POST", "/api/posts", alice, map[string]string{"content": "look", "image": upload.URL})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, upload.URL, decode[models.Post](t, rec).Image)

	assert.Equal(t, http.StatusNotFound, a.do("DELETE", "/api/media/"+upload.ID, bob, nil).Code)
	require.Equal(t, http.StatusOK, a.do("DELETE", "/api/media/"+upload.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do("GET", upload.URL, "", nil).Code)
}

func TestAdminRequiresAdmin(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")

	assert.Equal(t, http.StatusUnauthorized, a.do("GET", "/api/admin/stats", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do("GET", "/api/admin/stats", alice, nil).Code)
}

func TestAdminUsers(t *testing.T) {
	a := newTestAPI(t)
	root := a.signup("root")
	alice := a.signup("alice")
	bob := a.signup("bob")

	require.Equal(t, http.StatusCreated, a.do("POST", "/api/posts", bob, map[string]string{"content": "still here"}).Code)

	rec := a.do("PUT", "/api/admin/users/bob/ban", root, map[string]bool{"banned": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusUnauthorized, a.do("GET", "/api/me", bob, nil).Code, "ban revokes sessions")
	rec = a.do("POST", "/api/login", "", map[string]string{"username": "bob", "password": password})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do("GET", "/api/posts", alice, nil)
	require.Len(t, decode[[]models.Post](t, rec), 1, "banned users' posts stay visible")

	assert.Equal(t, http.StatusForbidden, a.do("PUT", "/api/admin/users/root/ban", root, map[string]bool{"banned": true}).Code)
	assert.Equal(t, http.StatusNotFound, a.do("PUT", "/api/admin/users/ghost/ban", root, map[string]bool{"banned": true}).Code)

	rec = a.do("GET", "/api/admin/users?q=ali", root, nil)
	users := decode[[]models.User](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	rec = a.do("POST", "/api/admin/users/alice/promote", root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusConflict, a.do("POST", "/api/admin/users/alice/promote", root, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do("POST", "/api/admin/users/ghost/promote", root, nil).Code)

	// alice is an admin now but only the super admin promotes
	require.Equal(t, http.StatusOK, a.do("GET", "/api/admin/stats", alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do("POST", "/api/admin/users/bob/promote", alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do("DELETE", "/api/admin/users/root", alice, nil).Code)

	rec = a.do("GET", "/api/admin/users/export", root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.NotContains(t, rec.Body.String(), "$2a$")
	assert.Len(t, decode[[]models.User](t, rec), 3)

	require.Equal(t, http.StatusOK, a.do("DELETE", "/api/admin/users/bob", root, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do("DELETE", "/api/admin/users/bob", root, nil).Code)

	rec = a.do("GET", "/api/admin/stats", root, nil)
	stats := decode[models.Stats](t, rec)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.TotalPosts)
	assert.Equal(t, 0, stats.BannedUsers)
}

func TestAdminInvites(t *testing.T) {
	a := newTestAPI(t)
	root := a.signup("root")

	rec := a.do("POST", "/api/admin/invites", root, map[string]string{"notes": "for dave"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	generated := decode[models.InviteCode](t, rec)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, generated.Code)
	assert.Equal(t, "root", generated.CreatedBy)

	require.Equal(t, http.StatusCreated, a.do("POST", "/api/admin/invites", root, map[string]string{"code": "WELCOME"}).Code)
	assert.Equal(t, http.StatusConflict, a.do("POST", "/api/admin/invites", root, map[string]string{"code": "WELCOME"}).Code)

	rec = a.do("GET", "/api/admin/invites", root, nil)
	// root's own signup invite is listed as well
	assert.Len(t, decode[[]models.InviteCode](t, rec), 3)

	rec = a.do("GET", "/api/admin/stats", root, nil)
	assert.Equal(t, 2, decode[models.Stats](t, rec).ActiveInviteCodes)

	require.Equal(t, http.StatusOK, a.do("DELETE", "/api/admin/invites/WELCOME", root, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do("DELETE", "/api/admin/invites/WELCOME", root, nil).Code)
}

func TestAdminPosts(t *testing.T) {
	a := newTestAPI(t)
	root := a.signup("root")
	alice := a.signup("alice")

	post := decode[models.Post](t, a.do("POST", "/api/posts", alice, map[string]string{"content": "spam"}))
	path := "/api/admin/posts/" + post.ID

	rec := a.do("PUT", path, root, map[string]string{"content": "[removed]"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[removed]", decode[models.Post](t, rec).Content)

	rec = a.do("DELETE", path, root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["permanent"])

	rec = a.do("GET", "/api/admin/posts", root, nil)
	posts := decode[[]models.Post](t, rec)
	require.Len(t, posts, 1)
	assert.True(t, posts[0].Deleted)

	require.Equal(t, http.StatusOK, a.do("POST", path+"/ban-author", root, nil).Code)
	user, err := a.db.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, user.Banned)

	rec = a.do("DELETE", path, root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["permanent"])
	assert.Equal(t, http.StatusNotFound, a.do("GET", "/api/posts/"+post.ID, root, nil).Code)

	rec = a.do("GET", "/api/admin/logs", root, nil)
	logs := decode[[]models.AdminLog](t, rec)
	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Subset(t, actions, []string{
		models.ActionPostEdited,
		models.ActionPostDeleted,
		models.ActionUserBanned,
		models.ActionPostDeletedPermanent,
	})

	require.Equal(t, http.StatusOK, a.do("DELETE", "/api/admin/logs", root, nil).Code)
	rec = a.do("GET", "/api/admin/logs", root, nil)
	logs = decode[[]models.AdminLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionLogsCleared, logs[0].Action)
}

func TestStream(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signup("alice")
	bob := a.signup("bob")
	a.signup("carol")

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + alice}})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	next := func() events.Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev events.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	require.Equal(t, http.StatusCreated, a.do("POST", "/api/posts", bob, map[string]string{"content": "hello stream"}).Code)
	ev := next()
	assert.Equal(t, events.PostCreated, ev.Type)
	assert.Equal(t, "hello stream", ev.Data.(map[string]any)["content"])

	// a DM between others is not delivered to alice
	require.Equal(t, http.StatusCreated, a.do("POST", "/api/dms/carol/messages", bob, map[string]string{"text": "psst"}).Code)
	require.Equal(t, http.StatusCreated, a.do("POST", "/api/dms/alice/messages", bob, map[string]string{"text": "hi alice"}).Code)
	ev = next()
	assert.Equal(t, events.DMMessage, ev.Type)
	assert.Equal(t, "hi alice", ev.Data.(map[string]any)["text"])
}
