package models

import "time"

// News is an announcement visible through its assignments.
type News struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewsAssignment grants a target visibility of a news item; broadcast means everyone.
type NewsAssignment struct {
	ID         string           `json:"id"`
	NewsID     string           `json:"news_id"`
	Target     AssignmentTarget `json:"target"`
	AssignedBy string           `json:"assigned_by"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewsFilter allows listing news.
type NewsFilter struct {
	Search   string
	Page     int
	PageSize int
}
