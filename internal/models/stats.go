package models

// SystemStats summarises the portal for the admin dashboard.
type SystemStats struct {
	Clients        int            `db:"clients" json:"clients"`
	ActiveClients  int            `db:"active_clients" json:"active_clients"`
	Profiles       int            `db:"profiles" json:"profiles"`
	ProfilesByRole map[Role]int   `db:"-" json:"profiles_by_role"`
	Files          int            `db:"files" json:"files"`
	StorageBytes   int64          `db:"storage_bytes" json:"storage_bytes"`
	Messages       int            `db:"messages" json:"messages"`
	UnreadMessages int            `db:"unread_messages" json:"unread_messages"`
	News           int            `db:"news" json:"news"`
	AccessByType   map[string]int `db:"-" json:"access_by_type"`
}
