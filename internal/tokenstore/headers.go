package tokenstore

import (
	"net/http"
	"strings"
	"sync"

	"github.com/nkiryanov/eazynet/internal/models"
)

// Headers used by clients that keep tokens in local storage themselves
const (
	HeaderAccess  = "X-Access-Token"
	HeaderRefresh = "X-Refresh-Token"
)

// Headers reads the pair from 'Authorization: Bearer' and 'X-Refresh-Token' request headers
// and reports newly issued or cleared tokens in response headers.
type Headers struct {
	w http.ResponseWriter

	mu   sync.Mutex
	pair models.TokenPair
}

func NewHeaders(w http.ResponseWriter, r *http.Request) *Headers {
	h := &Headers{w: w}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		h.pair.Access = strings.TrimSpace(token)
	}
	h.pair.Refresh = r.Header.Get(HeaderRefresh)
	return h
}

func (h *Headers) Load() (models.TokenPair, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pair, nil
}

// Empty header value tells the client to drop its copy
func (h *Headers) Save(pair models.TokenPair) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.w.Header().Set(HeaderAccess, pair.Access)
	h.w.Header().Set(HeaderRefresh, pair.Refresh)
	h.pair = pair
	return nil
}

func (h *Headers) ClearAccess() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.w.Header().Set(HeaderAccess, "")
	h.pair.Access = ""
	return nil
}

func (h *Headers) Clear() error {
	return h.Save(models.TokenPair{})
}
