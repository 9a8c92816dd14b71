package api

import (
	"net/http"
	"strings"

	"github.com/stacklok/seatwatch/internal/api/common"
	"github.com/stacklok/seatwatch/internal/tracking"
)

// Headers set by the identity provider in front of the API. Their values are trusted.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserEmail  = "X-User-Email"
	HeaderUserGroups = "X-User-Groups"
)

// RequireIdentity rejects requests without a user id and stores the caller's
// principal in the request context
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			common.WriteErrorResponse(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		p := tracking.Principal{
			UserID: userID,
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			Groups: parseGroups(r.Header.Get(HeaderUserGroups)),
		}
		next.ServeHTTP(w, r.WithContext(tracking.ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireGroup only lets members of group through. It must run after the identity middleware.
func RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := tracking.PrincipalFromContext(r.Context())
			if !ok || !p.InGroup(group) {
				common.WriteErrorResponse(w, "Only "+group+" users can perform this action", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func parseGroups(header string) []string {
	var groups []string
	for g := range strings.SplitSeq(header, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
