package auth

import "github.com/golang-jwt/jwt/v5"

// Roles accepted on write endpoints.
const (
	RolePublisher = "publisher"
	RoleAdmin     = "admin"
)

// Claims is the JWT payload issued to archive clients.
type Claims struct {
	jwt.RegisteredClaims        // sub, iss, aud, exp, iat
	Email                string `json:"email"`
	Role                 string `json:"role"`
}

// GetUserID returns the subject. It becomes the submitter of published revisions.
func (c *Claims) GetUserID() string {
	return c.Subject
}

// CanPublish reports whether the token may create revisions or change states.
func (c *Claims) CanPublish() bool {
	return c.Role == RolePublisher || c.Role == RoleAdmin
}

// CanRepublish reports whether the token may start a manual republish.
func (c *Claims) CanRepublish() bool {
	return c.Role == RoleAdmin
}
