package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Config wires a Controller.
type Config struct {
	BaseURL string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// RefreshMargin is how long before access expiry the controller
	// refreshes proactively. Defaults to one minute.
	RefreshMargin time.Duration
	// Cache, when set, persists the refresh token across runs.
	Cache TokenCache
	// Now overrides the clock. Test hook.
	Now func() time.Time
}

// Controller owns one client-side session: the current access token, its
// expiry, and the refresh token, plus a single timer that rotates the
// session shortly before the access token dies.
//
// Concurrency model: one mutex guards all session state; at most one
// refresh timer is scheduled at any time; a generation counter ensures a
// refresh that started before Logout cannot resurrect the session after.
type Controller struct {
	baseURL string
	http    *http.Client
	margin  time.Duration
	cache   TokenCache
	now     func() time.Time

	mu           sync.Mutex
	accessToken  string
	expiresAt    time.Time
	refreshToken string
	profile      Profile
	active       bool
	timer        *time.Timer
	generation   uint64
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		baseURL: cfg.BaseURL,
		http:    httpClient,
		margin:  margin,
		cache:   cfg.Cache,
		now:     now,
	}, nil
}

// Login authenticates and starts the session.
func (c *Controller) Login(ctx context.Context, email, password string) (Profile, error) {
	var resp tokenResponse
	err := c.postJSON(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Profile{}, err
	}

	c.install(resp)
	return resp.User, nil
}

// Register creates an account. When the server auto-logs the new account
// in, the returned session is installed; otherwise the caller proceeds to
// verification and Login.
func (c *Controller) Register(ctx context.Context, email, password, name string) (bool, error) {
	var resp struct {
		UserID               string         `json:"user_id"`
		VerificationRequired bool           `json:"verification_required"`
		Session              *tokenResponse `json:"session"`
	}
	err := c.postJSON(ctx, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &resp)
	if err != nil {
		return false, err
	}

	if resp.Session != nil {
		c.install(*resp.Session)
	}
	return resp.VerificationRequired, nil
}

// Resume restores a session from the token cache by rotating the cached
// refresh token. Returns ErrNotLoggedIn when nothing usable is cached.
func (c *Controller) Resume(ctx context.Context) (Profile, error) {
	if c.cache == nil {
		return Profile{}, ErrNotLoggedIn
	}

	cached, err := c.cache.Load()
	if err != nil {
		return Profile{}, err
	}
	if cached == "" {
		return Profile{}, ErrNotLoggedIn
	}

	resp, err := c.rotate(ctx, cached)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			_ = c.cache.Clear()
			return Profile{}, ErrNotLoggedIn
		}
		return Profile{}, err
	}

	c.install(resp)
	return resp.User, nil
}

// Refresh forces a rotation now, independent of the timer.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	token := c.refreshToken
	gen := c.generation
	c.mu.Unlock()

	return c.refreshWith(ctx, token, gen)
}

// Logout revokes the session server-side and clears all local state. The
// generation bump makes any in-flight refresh response a no-op.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	token := c.refreshToken
	c.generation++
	c.active = false
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.refreshToken = ""
	c.profile = Profile{}
	c.stopTimerLocked()
	c.mu.Unlock()

	if c.cache != nil {
		_ = c.cache.Clear()
	}

	if token == "" {
		return nil
	}
	return c.postJSON(ctx, "/auth/logout", map[string]string{
		"refresh_token": token,
	}, nil)
}

// AccessToken returns the current access token, or ErrNotLoggedIn when no
// session is active or the token has already expired.
func (c *Controller) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return "", ErrNotLoggedIn
	}
	if !c.now().Before(c.expiresAt) {
		return "", ErrNotLoggedIn
	}
	return c.accessToken, nil
}

// User returns the profile of the logged-in user.
func (c *Controller) User() (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return Profile{}, ErrNotLoggedIn
	}
	return c.profile, nil
}

// Close stops the refresh timer without revoking anything server-side.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.stopTimerLocked()
}

// install accepts a fresh token response and (re)schedules proactive
// refresh. The generation bump invalidates any refresh still in flight
// for the session this one replaces.
func (c *Controller) install(resp tokenResponse) {
	c.mu.Lock()
	c.generation++
	c.accessToken = resp.AccessToken
	c.expiresAt = expiryFrom(c.now(), resp.ExpiresIn)
	c.refreshToken = resp.RefreshToken
	c.profile = resp.User
	c.active = true
	c.scheduleLocked()
	c.mu.Unlock()

	if c.cache != nil && resp.RefreshToken != "" {
		_ = c.cache.Store(resp.RefreshToken)
	}
}

// scheduleLocked arms the single refresh timer. Any previously armed timer
// is stopped first, so there is never more than one scheduled refresh.
func (c *Controller) scheduleLocked() {
	c.stopTimerLocked()

	delay := c.expiresAt.Sub(c.now()) - c.margin
	if delay < 0 {
		delay = 0
	}

	gen := c.generation
	token := c.refreshToken
	c.timer = time.AfterFunc(delay, func() {
		_ = c.refreshWith(context.Background(), token, gen)
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// refreshWith rotates token and installs the result, unless the session
// generation moved on while the request was in flight.
func (c *Controller) refreshWith(ctx context.Context, token string, gen uint64) error {
	resp, err := c.rotate(ctx, token)

	c.mu.Lock()
	if c.generation != gen {
		// Logged out (or re-logged-in) while this refresh was in flight;
		// discard the result either way.
		c.mu.Unlock()
		return nil
	}

	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			// The lineage is dead. Drop everything.
			c.generation++
			c.active = false
			c.accessToken = ""
			c.expiresAt = time.Time{}
			c.refreshToken = ""
			c.profile = Profile{}
			c.stopTimerLocked()
			c.mu.Unlock()

			if c.cache != nil {
				_ = c.cache.Clear()
			}
			return err
		}
		// Transient failure: rotation did not happen, so the refresh token
		// is still valid. Retries stop once the access token is gone; the
		// session is dropped then, but a cached refresh credential stays on
		// disk so Resume can recover after the backend comes back.
		const retryDelay = 5 * time.Second
		c.stopTimerLocked()
		if !c.now().Add(retryDelay).Before(c.expiresAt) {
			c.generation++
			c.active = false
			c.accessToken = ""
			c.expiresAt = time.Time{}
			c.refreshToken = ""
			c.profile = Profile{}
			c.mu.Unlock()
			return err
		}
		c.timer = time.AfterFunc(retryDelay, func() {
			_ = c.refreshWith(context.Background(), token, gen)
		})
		c.mu.Unlock()
		return err
	}

	// The token rotated; a refresh still in flight with the old token can
	// only fail and must not act on this session.
	c.generation++
	c.accessToken = resp.AccessToken
	c.expiresAt = expiryFrom(c.now(), resp.ExpiresIn)
	c.refreshToken = resp.RefreshToken
	c.profile = resp.User
	c.active = true
	c.scheduleLocked()
	c.mu.Unlock()

	if c.cache != nil && resp.RefreshToken != "" {
		_ = c.cache.Store(resp.RefreshToken)
	}
	return nil
}

func (c *Controller) rotate(ctx context.Context, refreshToken string) (tokenResponse, error) {
	var resp tokenResponse
	err := c.postJSON(ctx, "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	return resp, err
}
