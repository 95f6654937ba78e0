package treestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTree stores nodes by exact path and mimics ETag handling.
type fakeTree struct {
	mu    sync.Mutex
	nodes map[string][]byte
	seq   int
}

func newFakeTree(t *testing.T) (*fakeTree, *Client) {
	f := &fakeTree{nodes: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, New(srv.URL + "/")
}

func etagOf(b []byte) string {
	if b == nil {
		return "null_etag"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func (f *fakeTree) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !strings.HasSuffix(r.URL.Path, ".json") {
		http.Error(w, `{"error":"missing .json"}`, http.StatusBadRequest)
		return
	}
	path := strings.Trim(strings.TrimSuffix(r.URL.Path, ".json"), "/")
	body, _ := io.ReadAll(r.Body)

	switch r.Method {
	case http.MethodGet:
		cur := f.nodes[path]
		if r.Header.Get("X-Firebase-ETag") == "true" {
			w.Header().Set("ETag", etagOf(cur))
		}
		if cur == nil {
			io.WriteString(w, "null")
			return
		}
		w.Write(cur)
	case http.MethodPut:
		if match := r.Header.Get("If-Match"); match != "" && match != etagOf(f.nodes[path]) {
			w.WriteHeader(http.StatusPreconditionFailed)
			io.WriteString(w, `{"error":"etag mismatch"}`)
			return
		}
		f.nodes[path] = body
		w.Header().Set("ETag", etagOf(body))
		w.Write(body)
	case http.MethodPost:
		f.seq++
		key := fmt.Sprintf("-K%03d", f.seq)
		f.nodes[path+"/"+key] = body
		fmt.Fprintf(w, `{"name":%q}`, key)
	case http.MethodDelete:
		delete(f.nodes, path)
		io.WriteString(w, "null")
	}
}

func TestURL(t *testing.T) {
	c := New("https://example.firebaseio.com/")
	assert.Equal(t, "https://example.firebaseio.com/users/alice.json", c.URL("users/alice"))
	assert.Equal(t, "https://example.firebaseio.com/users/alice.json", c.URL("/users/alice/"))
	assert.Equal(t, "https://example.firebaseio.com/.json", c.URL(""))
	assert.Equal(t, "https://example.firebaseio.com/dms/a%20b.json", c.URL("dms/a b"))

	authed := New("https://example.firebaseio.com", WithAuth("s3cr3t"))
	assert.Equal(t, "https://example.firebaseio.com/posts.json?auth=s3cr3t", authed.URL("posts"))
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	_, c := newFakeTree(t)

	type user struct {
		Bio string `json:"bio"`
	}
	require.NoError(t, c.Set(ctx, "users/alice", user{Bio: "hi"}))

	var got user
	require.NoError(t, c.Get(ctx, "users/alice", &got))
	assert.Equal(t, "hi", got.Bio)

	require.NoError(t, c.Delete(ctx, "users/alice"))
	require.ErrorIs(t, c.Get(ctx, "users/alice", &got), ErrNotFound)
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeTree(t)

	key, err := c.Push(ctx, "adminLogs", map[string]string{"action": "logs_cleared"})
	require.NoError(t, err)
	assert.Equal(t, "-K001", key)
	assert.JSONEq(t, `{"action":"logs_cleared"}`, string(f.nodes["adminLogs/-K001"]))
}

func TestConditionalWrite(t *testing.T) {
	ctx := context.Background()
	_, c := newFakeTree(t)
	require.NoError(t, c.Set(ctx, "inviteCodes/ABC123", map[string]bool{"used": false}))

	var node map[string]bool
	etag, err := c.GetWithETag(ctx, "inviteCodes/ABC123", &node)
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	// a second writer claims the code first
	require.NoError(t, c.Set(ctx, "inviteCodes/ABC123", map[string]bool{"used": true}))

	_, err = c.SetIfMatch(ctx, "inviteCodes/ABC123", etag, map[string]bool{"used": true})
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestGetWithETagMissing(t *testing.T) {
	_, c := newFakeTree(t)
	etag, err := c.GetWithETag(context.Background(), "nothing", nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "null_etag", etag)
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeTree(t)
	require.NoError(t, c.Set(ctx, "counter", 1))

	calls := 0
	err := c.Update(ctx, "counter", 3, func(cur json.RawMessage) (any, error) {
		calls++
		var n int
		if err := json.Unmarshal(cur, &n); err != nil {
			return nil, err
		}
		if calls == 1 {
			// concurrent writer between read and write
			f.mu.Lock()
			f.nodes["counter"] = []byte("10")
			f.mu.Unlock()
		}
		return n + 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	var n int
	require.NoError(t, c.Get(ctx, "counter", &n))
	assert.Equal(t, 11, n)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(srv.URL).Get(context.Background(), "users", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "Permission denied")
}
