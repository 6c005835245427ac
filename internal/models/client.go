package models

import "time"

// ClientStatus marks whether a tenant organization is active.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusInactive ClientStatus = "inactive"
)

// Client is a tenant organization.
type Client struct {
	ID            string       `db:"id" json:"id"`
	CompanyName   string       `db:"company_name" json:"company_name"`
	ContactEmail  string       `db:"contact_email" json:"contact_email"`
	Status        ClientStatus `db:"status" json:"status"`
	ClientAdminID *string      `db:"client_admin_id" json:"client_admin_id,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// ClientFilter captures list criteria for clients.
type ClientFilter struct {
	Status   *ClientStatus
	Search   string
	Page     int
	PageSize int
}
