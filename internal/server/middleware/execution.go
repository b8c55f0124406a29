package middleware

import (
	"context"
	"mime"
	"net"
	"net/http"

	"golang.org/x/text/language"

	"github.com/gosuda/audittrail/internal/capture"
)

// Execution attaches a capture.RequestContext to every request. It must be
// chained after Auth or OptionalAuth and after chi's RealIP.
//
// The request locale is negotiated from Accept-Language against supported;
// the first supported tag is the fallback.
func Execution(supported ...language.Tag) func(http.Handler) http.Handler {
	if len(supported) == 0 {
		supported = []language.Tag{language.English}
	}
	matcher := language.NewMatcher(supported)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := &capture.RequestContext{
				RemoteIP: clientIP(r.RemoteAddr),
				URL:      r.URL.RequestURI(),
				Query:    r.URL.Query(),
				Lang:     capture.NewLocale(negotiate(matcher, supported, r.Header.Get("Accept-Language"))),
			}
			if id, ok := ActorIDFromContext(r.Context()); ok {
				rc.Identity = &id
			}
			if isForm(r) {
				if err := r.ParseForm(); err == nil {
					rc.Form = r.PostForm
				}
			}

			ctx := context.WithValue(r.Context(), ContextKeyExecution, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func negotiate(matcher language.Matcher, supported []language.Tag, header string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isForm(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "application/x-www-form-urlencoded"
}
