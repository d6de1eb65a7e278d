package gmail

type MessageID string
type LabelID string

// Markers names the service's well-known labels. The core never hardcodes
// them; the remote binding supplies the values in use.
type Markers struct {
	Unread LabelID
	Inbox  LabelID
}

// DefaultMarkers returns the Gmail system label names.
func DefaultMarkers() Markers {
	return Markers{Unread: "UNREAD", Inbox: "INBOX"}
}

// Message is an immutable snapshot of what the server returned for one
// message. It flows through the planner and into the action and undo logs
// unchanged; nothing downstream writes to it.
type Message struct {
	ID       MessageID
	ThreadID string
	From     string
	Subject  string
	Snippet  string
	Date     string // raw RFC 2822 header value, parsed lazily by the matcher
	LabelIDs []LabelID
}

// HasLabel reports whether the message carries the given label.
func (m Message) HasLabel(l LabelID) bool {
	for _, id := range m.LabelIDs {
		if id == l {
			return true
		}
	}
	return false
}

// Key identifies a message within the planner and the undo pipeline. Two
// accounts may reuse the same server id, so the account is part of the key
// rather than a field stamped onto the message.
type Key struct {
	Account string
	ID      MessageID
}

// Candidate pairs a message with the mailbox it came from.
type Candidate struct {
	Account string
	Message Message
}

// Key returns the identity key for the candidate.
func (c Candidate) Key() Key {
	return Key{Account: c.Account, ID: c.Message.ID}
}

// OpResult is the per-id outcome of one mutation.
type OpResult struct {
	ID      MessageID `json:"id"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}
