package models

// RoleAdmin is the role claim carried by moderators.
const RoleAdmin = "admin"

// Caller is the authenticated identity behind a request. A nil *Caller means
// the request carried no bearer token.
type Caller struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAdmin reports whether the caller holds the admin role. It is safe to call
// on a nil receiver.
func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Authenticated reports whether c identifies a user.
func (c *Caller) Authenticated() bool {
	return c != nil && c.ID != ""
}
