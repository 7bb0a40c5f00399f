package session

import (
	"net/http"
	"time"
)

// Cookies describes the cookie pair holding a session.
type Cookies struct {
	Access     string
	Refresh    string
	Secure     bool
	RefreshTTL time.Duration
}

// RefreshToken returns the refresh token carried by req, if any.
func (c Cookies) RefreshToken(req *http.Request) string {
	cookie, err := req.Cookie(c.Refresh)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Apply writes pair to the response and replaces the cookies on the
// in-flight request so that handlers further down see the new session.
func (c Cookies) Apply(w http.ResponseWriter, req *http.Request, pair *TokenPair) {
	access := &http.Cookie{
		Name:     c.Access,
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if pair.ExpiresIn > 0 {
		access.MaxAge = pair.ExpiresIn
	}
	http.SetCookie(w, access)

	refreshValue := c.RefreshToken(req)
	if pair.RefreshToken != "" {
		refreshValue = pair.RefreshToken
		http.SetCookie(w, &http.Cookie{
			Name:     c.Refresh,
			Value:    pair.RefreshToken,
			Path:     "/",
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(c.RefreshTTL / time.Second),
		})
	}

	replaceRequestCookies(req, map[string]string{
		c.Access:  pair.AccessToken,
		c.Refresh: refreshValue,
	})
}

// Clear expires both cookies, used when the refresh token is rejected.
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{c.Access, c.Refresh} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   c.Secure,
			MaxAge:   -1,
		})
	}
}

func replaceRequestCookies(req *http.Request, values map[string]string) {
	existing := req.Cookies()
	req.Header.Del("Cookie")
	for _, cookie := range existing {
		if _, replaced := values[cookie.Name]; replaced {
			continue
		}
		req.AddCookie(cookie)
	}
	for name, value := range values {
		if value != "" {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
}
