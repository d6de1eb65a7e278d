package gmail

import "context"

// Client is the narrow multi-account Gmail surface required by mailsweep.
// Every mutation reports a per-id outcome; the pipeline does its own
// success/failure accounting and never assumes all-or-nothing batches.
type Client interface {
	Search(ctx context.Context, account, query string, maxResults int64) ([]Message, error)
	Trash(ctx context.Context, account string, ids []MessageID) ([]OpResult, error)
	Untrash(ctx context.Context, account string, ids []MessageID) ([]OpResult, error)
	Archive(ctx context.Context, account string, ids []MessageID) ([]OpResult, error)
	Unarchive(ctx context.Context, account string, ids []MessageID) ([]OpResult, error)
	MarkRead(ctx context.Context, account string, ids []MessageID) ([]OpResult, error)
}
