package model

import "time"

// Class is a school class (grade/section) row in the `classes` table.
type Class struct {
	ID        uint64
	Name      string
	Section   string
	Room      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
