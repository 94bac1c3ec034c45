package history

import "time"

// RequestData is the persisted slice of an outbound request: the header set
// actually sent and the caller-supplied body, if any.
type RequestData struct {
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
}

// ResponseData is the normalized response captured for an exchange. Body is
// either a parsed JSON value or the raw text, fixed at capture time.
type ResponseData struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body,omitempty"`
}

// Entry is one persisted request/response exchange, owned by exactly one
// identity. Entries are immutable after creation except for deletion.
type Entry struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"-"`
	OwnerID   string       `json:"-"`
	Endpoint  string       `json:"endpoint"`
	Method    string       `json:"method"`
	Timestamp time.Time    `json:"timestamp"`
	Request   RequestData  `json:"request"`
	Response  ResponseData `json:"response"`
}

// Outcome is the slice of an entry that statistics are derived from.
type Outcome struct {
	Method string
	Status int
}

// Page is one page of an owner's history, newest first.
type Page struct {
	Items       []Entry
	CurrentPage int
	TotalPages  int
	TotalCount  int64
	Limit       int
	HasNext     bool
	HasPrev     bool
}
