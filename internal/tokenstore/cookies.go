package tokenstore

import (
	"net/http"
	"sync"
	"time"

	"github.com/nkiryanov/eazynet/internal/models"
)

// Cookie names read by server-rendered pages
const (
	CookieAccess  = "eazynet_jwt_token"
	CookieRefresh = "eazynet_refresh_token"
)

// Cookie lifetimes are fixed and do not follow the token 'exp' claim
const (
	AccessCookieTTL  = 7 * 24 * time.Hour
	RefreshCookieTTL = 30 * 24 * time.Hour
)

// Cookies is bound to a single request/response pair.
// Reads come from the request cookies until the first write; later reads see written values.
type Cookies struct {
	w      http.ResponseWriter
	secure bool
	now    func() time.Time

	mu   sync.Mutex
	pair models.TokenPair
}

type CookiesOption func(*Cookies)

// Set 'Secure' attribute on written cookies
func WithSecure(secure bool) CookiesOption {
	return func(c *Cookies) { c.secure = secure }
}

func WithNow(now func() time.Time) CookiesOption {
	return func(c *Cookies) { c.now = now }
}

func NewCookies(w http.ResponseWriter, r *http.Request, opts ...CookiesOption) *Cookies {
	c := &Cookies{w: w, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	if cookie, err := r.Cookie(CookieAccess); err == nil {
		c.pair.Access = cookie.Value
	}
	if cookie, err := r.Cookie(CookieRefresh); err == nil {
		c.pair.Refresh = cookie.Value
	}
	return c
}

func (c *Cookies) Load() (models.TokenPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pair, nil
}

func (c *Cookies) Save(pair models.TokenPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.write(CookieAccess, pair.Access, AccessCookieTTL)
	c.write(CookieRefresh, pair.Refresh, RefreshCookieTTL)
	c.pair = pair
	return nil
}

func (c *Cookies) ClearAccess() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.write(CookieAccess, "", 0)
	c.pair.Access = ""
	return nil
}

func (c *Cookies) Clear() error {
	return c.Save(models.TokenPair{})
}

// Empty value expires the cookie
func (c *Cookies) write(name, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}

	if value == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	} else {
		cookie.MaxAge = int(ttl.Seconds())
		cookie.Expires = c.now().Add(ttl)
	}

	http.SetCookie(c.w, cookie)
}
