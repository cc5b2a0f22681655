package model

import "time"

// Notice is a school-wide announcement. PublishedBy records which principal
// created it using the same tagged reference discipline as the auth tables.
type Notice struct {
	ID          uint64
	Title       string
	Description string
	PublishedBy PrincipalRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
