package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/auth"
	"github.com/storefront/server/internal/shared/response"
)

// AdminAuthorizer decides whether the authenticated caller may act as a store admin.
// A caller is an admin when the token carries the admin role, or when the email
// or user id is on the configured allow lists.
type AdminAuthorizer struct {
	adminEmails  map[string]struct{}
	adminUserIDs map[uuid.UUID]struct{}
}

// NewAdminAuthorizer creates an authorizer from configured allow lists.
func NewAdminAuthorizer(adminEmails, adminUserIDs []string) *AdminAuthorizer {
	return &AdminAuthorizer{
		adminEmails:  normalizeEmailSet(adminEmails),
		adminUserIDs: parseUUIDSet(adminUserIDs),
	}
}

// IsAdmin reports whether the identity is an admin.
func (a *AdminAuthorizer) IsAdmin(userID uuid.UUID, email, role string) bool {
	if userID == uuid.Nil {
		return false
	}
	if strings.EqualFold(role, auth.RoleAdmin) {
		return true
	}
	if _, ok := a.adminUserIDs[userID]; ok {
		return true
	}
	if email = normalizeEmail(email); email != "" {
		if _, ok := a.adminEmails[email]; ok {
			return true
		}
	}
	return false
}

// RequireAdmin aborts requests from non-admin callers. It must run after Auth.
func RequireAdmin(authorizer *AdminAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == uuid.Nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
			return
		}

		if authorizer == nil || !authorizer.IsAdmin(userID, GetEmail(c), GetRole(c)) {
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			return
		}

		c.Next()
	}
}

func normalizeEmailSet(emails []string) map[string]struct{} {
	out := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseUUIDSet(ids []string) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}
