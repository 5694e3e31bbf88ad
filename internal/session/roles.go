package session

import (
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/portal-notify/internal/model"
)

// Portal role names, normalized.
const (
	RoleServiceStaff    = "SERVICE_STAFF"
	RoleTechnicalStaff  = "TECHNICAL_STAFF"
	RoleCashierStaff    = "CASHIER_STAFF"
	RoleAccountingStaff = "ACCOUNTING_STAFF"
	RoleAdmin           = "ADMIN"
)

const (
	// UserQueue is the per-user STOMP destination.
	UserQueue = "/user/queue/notifications"

	// legacyTopic is subscribed by every client regardless of role.
	legacyTopic = "service-staff"
)

var (
	upperNonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)
	lowerNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeRole maps "role_service_staff", "Service Staff" and
// "SERVICE_STAFF" to the same name.
func NormalizeRole(role string) string {
	r := strings.ToUpper(strings.TrimSpace(role))
	r = strings.TrimPrefix(r, "ROLE_")
	return strings.Trim(upperNonAlnum.ReplaceAllString(r, "_"), "_")
}

// RoleTopic returns the broadcast topic name for a role.
func RoleTopic(role string) string {
	t := strings.ToLower(strings.TrimSpace(role))
	t = strings.TrimPrefix(t, "role_")
	return strings.Trim(lowerNonAlnum.ReplaceAllString(t, "-"), "-")
}

// TokenRoles reads the "roles" (array) or "role" (string) claim from a JWT
// without verifying it. Tokens that are not JWTs yield nil.
func TokenRoles(token string) []string {
	if strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	var roles []string
	switch v := claims["roles"].(type) {
	case []any:
		for _, r := range v {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
	case string:
		if v != "" {
			roles = append(roles, v)
		}
	}
	if len(roles) == 0 {
		if s, ok := claims["role"].(string); ok && s != "" {
			roles = append(roles, s)
		}
	}
	return roles
}

// Roles returns the normalized roles of a session. The user's roleName
// wins; token claims are read only when it is empty. Duplicates are
// dropped.
func Roles(sess model.Session) []string {
	if r := NormalizeRole(sess.User.RoleName); r != "" {
		return []string{r}
	}

	seen := make(map[string]bool)
	var out []string
	for _, r := range TokenRoles(sess.Token) {
		n := NormalizeRole(r)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// PrimaryRole is the role that picks the bell shown to the user.
func PrimaryRole(sess model.Session) string {
	roles := Roles(sess)
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}

// Allowed reports whether any of roles is in the allowed set. Both sides
// are normalized before comparison.
func Allowed(roles, allowed []string) bool {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[NormalizeRole(a)] = true
	}
	for _, r := range roles {
		if set[NormalizeRole(r)] {
			return true
		}
	}
	return false
}

// Destinations returns the STOMP destinations a session subscribes to:
// the user queue, the legacy service-staff topic and one topic per role.
func Destinations(sess model.Session) []string {
	dests := []string{UserQueue}
	seen := map[string]bool{legacyTopic: true}
	dests = append(dests, "/topic/"+legacyTopic)

	for _, r := range Roles(sess) {
		t := RoleTopic(r)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		dests = append(dests, "/topic/"+t)
	}
	return dests
}
