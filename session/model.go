package session

// Meta is the client metadata recorded alongside a session at creation.
type Meta struct {
	IP        string
	UserAgent string
}

// Record is the read-only view of a stored session.
type Record struct {
	SessionID string
	AccountID int64
	CreatedAt int64
	IP        string
	UserAgent string
}
