package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MountResolver asks qBittorrent where it saves downloads and translates that
// path into one of the mount roots visible to this process.
type MountResolver struct {
	baseURL    string
	user, pass string
	candidates []string
	fallback   string
	timeout    time.Duration
	ttl        time.Duration

	now func() time.Time

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

// ResolverOptions configures a MountResolver.
type ResolverOptions struct {
	BaseURL    string
	Username   string
	Password   string
	Candidates []string // checked in order; first prefix match wins
	Fallback   string
	Timeout    time.Duration
	CacheTTL   time.Duration // 0 disables caching
}

// NewMountResolver creates a resolver from opts.
func NewMountResolver(opts ResolverOptions) *MountResolver {
	return &MountResolver{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		user:       opts.Username,
		pass:       opts.Password,
		candidates: append([]string(nil), opts.Candidates...),
		fallback:   opts.Fallback,
		timeout:    opts.Timeout,
		ttl:        opts.CacheTTL,
		now:        time.Now,
	}
}

// Resolve returns the local download mount. It always returns a path: the
// fallback is used when qBittorrent is unreachable or no candidate matches.
// The error explains why the fallback was chosen.
func (r *MountResolver) Resolve(ctx context.Context) (string, error) {
	if path, ok := r.fromCache(); ok {
		return path, nil
	}

	savePath, err := r.savePath(ctx)
	if err != nil {
		return r.fallback, err
	}
	mount, ok := MatchMount(savePath, r.candidates)
	if !ok {
		return r.fallback, fmt.Errorf("qbittorrent: no mount candidate matches save_path %q", savePath)
	}
	r.store(mount)
	return mount, nil
}

// MatchMount returns the first candidate that prefixes savePath.
func MatchMount(savePath string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if strings.HasPrefix(savePath, c) {
			return c, true
		}
	}
	return "", false
}

func (r *MountResolver) fromCache() (string, bool) {
	if r.ttl <= 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == "" || r.now().Sub(r.cachedAt) >= r.ttl {
		return "", false
	}
	return r.cached, true
}

func (r *MountResolver) store(path string) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.cached = path
	r.cachedAt = r.now()
	r.mu.Unlock()
}

// savePath logs in with a fresh cookie session and reads preferences.save_path.
func (r *MountResolver) savePath(ctx context.Context) (string, error) {
	if r.baseURL == "" {
		return "", fmt.Errorf("qbittorrent: %w: url required", ErrNotConfigured)
	}

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: r.timeout, Jar: jar}

	if err := r.login(ctx, client); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/v2/app/preferences", nil)
	if err != nil {
		return "", fmt.Errorf("qbittorrent: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("qbittorrent: preferences: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("qbittorrent: preferences: %w (%d)", ErrUpstreamStatus, resp.StatusCode)
	}

	var prefs struct {
		SavePath *string `json:"save_path"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&prefs); err != nil {
		return "", fmt.Errorf("qbittorrent: %w: %v", ErrMalformed, err)
	}
	if prefs.SavePath == nil {
		return "", fmt.Errorf("qbittorrent: %w: save_path missing", ErrMalformed)
	}
	return *prefs.SavePath, nil
}

// login posts the credentials. qBittorrent answers 200 with "Fails." for bad
// credentials, so the body is checked as well as the status.
func (r *MountResolver) login(ctx context.Context, client *http.Client) error {
	form := url.Values{}
	form.Set("username", r.user)
	form.Set("password", r.pass)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("qbittorrent: building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// qBittorrent's CSRF check compares Referer with its own origin.
	req.Header.Set("Referer", r.baseURL)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("qbittorrent: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("qbittorrent: login: %w (%d)", ErrUpstreamStatus, resp.StatusCode)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if strings.TrimSpace(string(body)) == "Fails." {
		return fmt.Errorf("qbittorrent: login rejected for user %q", r.user)
	}
	return nil
}
