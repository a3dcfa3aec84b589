package models

import "time"

// ResourceRecord is a ledger entry for a resource created through the CLI
type ResourceRecord struct {
	Ref       string    `json:"ref"`
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
