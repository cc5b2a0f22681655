package model

import "time"

// Session is one logged-in device for a principal. The refresh token is
// stored verbatim (it is already an opaque signed JWT) and is replaced in
// place on rotation so the row identity survives a refresh. Rows are
// deleted on logout, logout-all, password reset and email re-verification.
//
// Fields:
//
//	ID           – primary key identifier.
//	Principal    – tagged owner reference (sessions.principal_kind/principal_id).
//	RefreshToken – current refresh token value for this device.
//	DeviceLabel  – human readable label, taken from the User-Agent header.
type Session struct {
	ID           uint64
	Principal    PrincipalRef
	RefreshToken string
	DeviceLabel  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
