package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-server/token"
)

const (
	// SessionCookieName holds the signed session record.
	SessionCookieName = "account_session"

	accessCookiePrefix  = "access_token_"
	refreshCookiePrefix = "refresh_token_"

	// DefaultAccountBasePath scopes credential cookies so one account's tokens
	// never ride along on another account's requests.
	DefaultAccountBasePath = "/api/accounts"

	// DefaultSessionCookieExpiry keeps the session cookie alive across browser
	// restarts. The envelope inside carries no expiry of its own.
	DefaultSessionCookieExpiry = 365 * 24 * time.Hour

	// chunkedCanaryByte prefixes a session cookie value that continues in
	// numbered follow-up cookies. It must not be valid base64.
	chunkedCanaryByte byte = '%'
	// maxChunkSize stays under the 4096-byte cookie limit with room for
	// metadata.
	maxChunkSize = 3800
	// maxNumChunks bounds reassembly.
	maxNumChunks = 5
)

// CookieOptions configures the cookie store. The zero value is usable.
type CookieOptions struct {
	Name            string        // session cookie name, default SessionCookieName
	Domain          string        // optional cookie domain
	Secure          bool          // set Secure on every cookie (hardened deployments)
	SameSite        http.SameSite // default Lax
	AccountBasePath string        // credential cookie path prefix, default DefaultAccountBasePath
	Expire          time.Duration // session cookie lifetime, default DefaultSessionCookieExpiry
}

// CookieStore reads and writes the session record cookie and the per-account
// credential cookies. Session values above the single-cookie limit are
// chunked across numbered cookies with a canary prefix on the first.
type CookieStore struct {
	name            string
	domain          string
	secure          bool
	sameSite        http.SameSite
	accountBasePath string
	expire          time.Duration

	encoder Encoder
	nowFunc func() time.Time
}

// NewCookieStore creates a store over the given record encoder.
func NewCookieStore(encoder Encoder, opts CookieOptions) (*CookieStore, error) {
	if encoder == nil {
		return nil, errors.New("[NewCookieStore] encoder is required")
	}

	s := &CookieStore{
		name:            opts.Name,
		domain:          opts.Domain,
		secure:          opts.Secure,
		sameSite:        opts.SameSite,
		accountBasePath: strings.TrimSuffix(opts.AccountBasePath, "/"),
		expire:          opts.Expire,
		encoder:         encoder,
		nowFunc:         time.Now,
	}
	if s.name == "" {
		s.name = SessionCookieName
	}
	if s.sameSite == 0 {
		s.sameSite = http.SameSiteLaxMode
	}
	if s.accountBasePath == "" {
		s.accountBasePath = DefaultAccountBasePath
	}
	if s.expire == 0 {
		s.expire = DefaultSessionCookieExpiry
	}
	return s, nil
}

// SaveSession encodes the record and writes the session cookie, chunking when
// the value is too large for one cookie.
func (s *CookieStore) SaveSession(w http.ResponseWriter, rec Record) error {
	value, err := s.encoder.Encode(rec)
	if err != nil {
		return errors.Wrap(err, "[CookieStore.SaveSession] encode record")
	}

	cookie := s.makeSessionCookie(value)
	if len(cookie.String()) <= maxChunkSize {
		http.SetCookie(w, cookie)
		return nil
	}

	chunks := chunk(value, maxChunkSize)
	if len(chunks) > maxNumChunks {
		return errors.Errorf("[CookieStore.SaveSession] session record too large: %d chunks", len(chunks))
	}
	for i, c := range chunks {
		nc := *cookie
		if i == 0 {
			nc.Value = string(chunkedCanaryByte) + c
		} else {
			nc.Name = fmt.Sprintf("%s_%d", cookie.Name, i)
			nc.Value = c
		}
		http.SetCookie(w, &nc)
	}
	return nil
}

// LoadSession reads and decodes the session record from the request. It
// returns ErrNoSession when no cookie is present and ErrSessionInvalid when a
// cookie is present but cannot be decoded.
func (s *CookieStore) LoadSession(r *http.Request) (Record, error) {
	cookies := matchingCookies(r, s.name)
	if len(cookies) == 0 {
		return Record{}, ErrNoSession
	}

	var lastErr error
	for _, cookie := range cookies {
		rec, err := s.encoder.Decode(loadChunkedValue(r, cookie))
		if err == nil {
			return rec, nil
		}
		lastErr = err
	}
	return Record{}, errors.Wrapf(ErrSessionInvalid, "[CookieStore.LoadSession] %v", lastErr)
}

// ClearSession expires the session cookie and any chunk continuations.
func (s *CookieStore) ClearSession(w http.ResponseWriter) {
	expireCookie(w, s.makeSessionCookie(""))
	for i := 1; i <= maxNumChunks; i++ {
		nc := s.makeSessionCookie("")
		nc.Name = fmt.Sprintf("%s_%d", s.name, i)
		expireCookie(w, nc)
	}
}

// Decode verifies and decodes a raw session value outside a cookie, for
// callers that receive the value over another transport.
func (s *CookieStore) Decode(value string) (Record, error) {
	return s.encoder.Decode(value)
}

// SetCredentials writes the account's token cookies. An empty refresh value
// leaves the existing refresh cookie untouched, which is how refreshed pairs
// that did not rotate the refresh token are applied.
func (s *CookieStore) SetCredentials(w http.ResponseWriter, accountID string, pair token.CredentialPair) {
	access := s.makeCredentialCookie(accessCookiePrefix+accountID, accountID, pair.Access)
	if !pair.AccessExpiry.IsZero() {
		access.Expires = pair.AccessExpiry
	}
	http.SetCookie(w, access)

	if pair.Refresh == "" {
		return
	}
	refresh := s.makeCredentialCookie(refreshCookiePrefix+accountID, accountID, pair.Refresh)
	if !pair.RefreshExpiry.IsZero() {
		refresh.Expires = pair.RefreshExpiry
	}
	http.SetCookie(w, refresh)
}

// ClearCredentials expires both of the account's token cookies.
func (s *CookieStore) ClearCredentials(w http.ResponseWriter, accountID string) {
	expireCookie(w, s.makeCredentialCookie(accessCookiePrefix+accountID, accountID, ""))
	expireCookie(w, s.makeCredentialCookie(refreshCookiePrefix+accountID, accountID, ""))
}

// AccessToken returns the raw access envelope for the account, if the request
// carried one.
func (s *CookieStore) AccessToken(r *http.Request, accountID string) (string, bool) {
	return cookieValue(r, accessCookiePrefix+accountID)
}

// RefreshToken returns the raw refresh envelope for the account, if the
// request carried one.
func (s *CookieStore) RefreshToken(r *http.Request, accountID string) (string, bool) {
	return cookieValue(r, refreshCookiePrefix+accountID)
}

// AccountPath returns the cookie path credential cookies are scoped to.
func (s *CookieStore) AccountPath(accountID string) string {
	return s.accountBasePath + "/" + accountID
}

func (s *CookieStore) makeSessionCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		Domain:   s.domain,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
		Expires:  s.nowFunc().Add(s.expire),
	}
}

func (s *CookieStore) makeCredentialCookie(name, accountID, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.AccountPath(accountID),
		Domain:   s.domain,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: s.sameSite,
	}
}

func expireCookie(w http.ResponseWriter, c *http.Cookie) {
	c.Value = ""
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func matchingCookies(r *http.Request, name string) []*http.Cookie {
	all := r.Cookies()
	matched := make([]*http.Cookie, 0, len(all))
	for _, c := range all {
		if strings.EqualFold(c.Name, name) {
			matched = append(matched, c)
		}
	}
	return matched
}

// loadChunkedValue reassembles a chunked session value. A value without the
// canary prefix is returned as is.
func loadChunkedValue(r *http.Request, c *http.Cookie) string {
	if len(c.Value) == 0 || c.Value[0] != chunkedCanaryByte {
		return c.Value
	}

	var b strings.Builder
	b.WriteString(c.Value[1:])
	for i := 1; i <= maxNumChunks; i++ {
		next, err := r.Cookie(fmt.Sprintf("%s_%d", c.Name, i))
		if err != nil {
			break
		}
		b.WriteString(next.Value)
	}
	return b.String()
}

func chunk(s string, size int) []string {
	ss := make([]string, 0, len(s)/size+1)
	for len(s) > 0 {
		if len(s) < size {
			size = len(s)
		}
		ss, s = append(ss, s[:size]), s[size:]
	}
	return ss
}
