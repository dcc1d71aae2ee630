package middleware

import "net/http"

// HTTPSRedirectHandler permanently redirects plain-HTTP requests to the
// same host and path over HTTPS. Serve it on a separate listener when
// TLS is enabled.
func HTTPSRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}
