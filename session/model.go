package session

import "time"

// Device describes the client that holds a session. Fields are extracted
// upstream from the request and copied verbatim into the record.
type Device struct {
	IP        string
	UserAgent string
	Name      string
}

// Record is the ephemeral state stored for a single access token.
//
// JTI is not part of the encoded payload; it is the key the record lives
// under and is populated by the store on read.
type Record struct {
	JTI          string
	UserID       string
	TokenVersion int64
	Device       Device
	CreatedAt    int64
	ExpiresAt    int64
}

// Created returns CreatedAt as a time.Time.
func (r *Record) Created() time.Time {
	return time.Unix(r.CreatedAt, 0)
}

// Expired reports whether the record's own expiry is at or before now.
// Redis expires keys on its own; this guards readers of in-flight values.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}
