package models

import "time"

// Role is the portal role a profile acts under.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RoleUser   Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleUser:
		return true
	}
	return false
}

// Profile is a portal account stored in the profiles table.
// An admin never has a client; an active client or user always does.
type Profile struct {
	ID           string  `db:"id" json:"id"`
	Email        string  `db:"email" json:"email"`
	FullName     string  `db:"full_name" json:"full_name"`
	Role         Role    `db:"role" json:"role"`
	ClientID     *string `db:"client_id" json:"client_id,omitempty"`
	PasswordHash string  `db:"password_hash" json:"-"`
	Active       bool    `db:"active" json:"active"`
	// Pending marks a profile auto-provisioned on first sign-in that no admin has bound yet.
	Pending   bool      `db:"pending" json:"pending"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClientRef returns the client id or "" when the profile has none.
func (p *Profile) ClientRef() string {
	if p == nil || p.ClientID == nil {
		return ""
	}
	return *p.ClientID
}

// Actor converts the profile into the identity used for authorization.
func (p *Profile) Actor() Actor {
	return Actor{ID: p.ID, Email: p.Email, FullName: p.FullName, Role: p.Role, ClientID: p.ClientRef()}
}

// ValidRoleBinding reports whether role and client satisfy the profile invariant.
func ValidRoleBinding(role Role, clientID *string, active bool) bool {
	hasClient := clientID != nil && *clientID != ""
	switch role {
	case RoleAdmin:
		return !hasClient
	case RoleClient, RoleUser:
		return hasClient || !active
	}
	return false
}

// Actor is the authenticated principal behind a request.
type Actor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
	ClientID string `json:"client_id,omitempty"`
}

// HasClient reports whether the actor is affiliated with a client.
func (a Actor) HasClient() bool { return a.ClientID != "" }

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// ProfileFilter captures filtering criteria for listing profiles.
type ProfileFilter struct {
	Role     *Role
	ClientID *string
	Active   *bool
	Search   string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizePage clamps page and size into sane bounds.
func NormalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
