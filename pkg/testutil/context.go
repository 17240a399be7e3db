package testutil

import (
	"net/http"
	"net/http/httptest"

	id "accman/pkg/domain"
	"accman/pkg/requestcontext"
)

// WithUserID marks the request as signed in, as the session middleware would.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// SessionCookie returns the named cookie set on the response, or nil.
func SessionCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// WithCookie attaches c to the request when it is non-nil.
func WithCookie(req *http.Request, c *http.Cookie) *http.Request {
	if c != nil {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}
