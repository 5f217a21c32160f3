package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCandidates = []string{"/mnt/local/downloads", "/downloads", "/mnt/qbit-downloads"}

// fakeQBit mimics qBittorrent's login/preferences flow. The preferences
// endpoint only answers when the SID cookie from login is presented.
type fakeQBit struct {
	loginStatus int
	loginBody   string
	prefsStatus int
	prefsBody   string
	logins      atomic.Int32
}

func (f *fakeQBit) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "admin", r.PostForm.Get("username"))
		if f.loginStatus == http.StatusOK && f.loginBody == "Ok." {
			http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session", Path: "/"})
		}
		w.WriteHeader(f.loginStatus)
		_, _ = w.Write([]byte(f.loginBody))
	})
	mux.HandleFunc("/api/v2/app/preferences", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("SID"); err != nil || c.Value != "session" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(f.prefsStatus)
		_, _ = w.Write([]byte(f.prefsBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(url string, ttl time.Duration) *MountResolver {
	return NewMountResolver(ResolverOptions{
		BaseURL:    url,
		Username:   "admin",
		Password:   "adminadmin",
		Candidates: testCandidates,
		Fallback:   "/fallback",
		Timeout:    time.Second,
		CacheTTL:   ttl,
	})
}

func TestMountResolverMatchesCandidate(t *testing.T) {
	f := &fakeQBit{loginStatus: 200, loginBody: "Ok.", prefsStatus: 200, prefsBody: `{"save_path":"/downloads/complete/"}`}
	srv := f.start(t)

	path, err := newTestResolver(srv.URL, 0).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/downloads", path)
}

func TestMountResolverFallbacks(t *testing.T) {
	tests := map[string]*fakeQBit{
		"login rejected":   {loginStatus: 200, loginBody: "Fails.", prefsStatus: 200, prefsBody: `{"save_path":"/downloads"}`},
		"login forbidden":  {loginStatus: 403, loginBody: "Forbidden", prefsStatus: 200, prefsBody: `{}`},
		"prefs error":      {loginStatus: 200, loginBody: "Ok.", prefsStatus: 500, prefsBody: ``},
		"prefs malformed":  {loginStatus: 200, loginBody: "Ok.", prefsStatus: 200, prefsBody: `[1,2`},
		"save_path absent": {loginStatus: 200, loginBody: "Ok.", prefsStatus: 200, prefsBody: `{"temp_path":"/tmp"}`},
		"no candidate":     {loginStatus: 200, loginBody: "Ok.", prefsStatus: 200, prefsBody: `{"save_path":"/srv/torrents"}`},
	}
	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			srv := f.start(t)
			path, err := newTestResolver(srv.URL, 0).Resolve(context.Background())
			assert.Error(t, err)
			assert.Equal(t, "/fallback", path)
		})
	}
}

func TestMountResolverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	path, err := newTestResolver(url, 0).Resolve(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "/fallback", path)
}

func TestMountResolverNotConfigured(t *testing.T) {
	path, err := newTestResolver("", 0).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "/fallback", path)
}

func TestMountResolverResolvesEveryCallWithoutTTL(t *testing.T) {
	f := &fakeQBit{loginStatus: 200, loginBody: "Ok.", prefsStatus: 200, prefsBody: `{"save_path":"/mnt/qbit-downloads/tv"}`}
	srv := f.start(t)
	r := newTestResolver(srv.URL, 0)

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), f.logins.Load())
}

func TestMountResolverCachesWithTTL(t *testing.T) {
	f := &fakeQBit{loginStatus: 200, loginBody: "Ok.", prefsStatus: 200, prefsBody: `{"save_path":"/mnt/qbit-downloads/tv"}`}
	srv := f.start(t)
	r := newTestResolver(srv.URL, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		path, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/mnt/qbit-downloads", path)
	}
	assert.Equal(t, int32(1), f.logins.Load())

	now = now.Add(time.Minute)
	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestMatchMountOrder(t *testing.T) {
	candidates := []string{"/data", "/data/downloads"}

	got, ok := MatchMount("/data/downloads/movies", candidates)
	require.True(t, ok)
	assert.Equal(t, "/data", got, "first candidate in list order wins")

	_, ok = MatchMount("/media", candidates)
	assert.False(t, ok)

	_, ok = MatchMount("", candidates)
	assert.False(t, ok)
}
