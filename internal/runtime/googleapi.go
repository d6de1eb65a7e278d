// Package runtime binds the core to the real Gmail API and process-level
// concerns (credentials, default logger). Everything else in the module
// talks to the narrow gmail.Client interface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	gmailapi "google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/mailsweep/internal/gmail"
)

type googleClient struct {
	services map[string]*gmailapi.Service
	markers  gc.Markers
}

// NewGoogleAPIClient adapts one *gmail.Service per account to the core's
// client interface.
func NewGoogleAPIClient(services map[string]*gmailapi.Service, markers gc.Markers) gc.Client {
	return &googleClient{services: services, markers: markers}
}

func (g *googleClient) svc(account string) (*gmailapi.Service, error) {
	svc, ok := g.services[account]
	if !ok {
		return nil, fmt.Errorf("no authenticated service for account %q", account)
	}
	return svc, nil
}

func (g *googleClient) Search(ctx context.Context, account, query string, maxResults int64) ([]gc.Message, error) {
	svc, err := g.svc(account)
	if err != nil {
		return nil, err
	}
	res, err := svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", account, err)
	}
	msgs := make([]gc.Message, 0, len(res.Messages))
	for _, ref := range res.Messages {
		full, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s for %s: %w", ref.Id, account, err)
		}
		msgs = append(msgs, toMessage(full))
	}
	return msgs, nil
}

func toMessage(m *gmailapi.Message) gc.Message {
	headers := map[string]string{}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}
	labels := make([]gc.LabelID, len(m.LabelIds))
	for i, l := range m.LabelIds {
		labels[i] = gc.LabelID(l)
	}
	return gc.Message{
		ID:       gc.MessageID(m.Id),
		ThreadID: m.ThreadId,
		From:     headers["From"],
		Subject:  headers["Subject"],
		Date:     headers["Date"],
		Snippet:  m.Snippet,
		LabelIDs: labels,
	}
}

// perID runs one API call per message so every id gets its own outcome;
// Gmail's batch endpoints report only aggregate success.
func (g *googleClient) perID(ctx context.Context, account string, ids []gc.MessageID, op func(svc *gmailapi.Service, id string) error) ([]gc.OpResult, error) {
	svc, err := g.svc(account)
	if err != nil {
		return nil, err
	}
	results := make([]gc.OpResult, 0, len(ids))
	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, ctxErr
		}
		if opErr := op(svc, string(id)); opErr != nil {
			results = append(results, gc.OpResult{ID: id, Error: opErr.Error()})
			continue
		}
		results = append(results, gc.OpResult{ID: id, Success: true})
	}
	return results, nil
}

func (g *googleClient) Trash(ctx context.Context, account string, ids []gc.MessageID) ([]gc.OpResult, error) {
	return g.perID(ctx, account, ids, func(svc *gmailapi.Service, id string) error {
		_, err := svc.Users.Messages.Trash("me", id).Context(ctx).Do()
		return err
	})
}

func (g *googleClient) Untrash(ctx context.Context, account string, ids []gc.MessageID) ([]gc.OpResult, error) {
	return g.perID(ctx, account, ids, func(svc *gmailapi.Service, id string) error {
		_, err := svc.Users.Messages.Untrash("me", id).Context(ctx).Do()
		return err
	})
}

func (g *googleClient) Archive(ctx context.Context, account string, ids []gc.MessageID) ([]gc.OpResult, error) {
	return g.modify(ctx, account, ids, nil, []string{string(g.markers.Inbox)})
}

func (g *googleClient) Unarchive(ctx context.Context, account string, ids []gc.MessageID) ([]gc.OpResult, error) {
	return g.modify(ctx, account, ids, []string{string(g.markers.Inbox)}, nil)
}

func (g *googleClient) MarkRead(ctx context.Context, account string, ids []gc.MessageID) ([]gc.OpResult, error) {
	return g.modify(ctx, account, ids, nil, []string{string(g.markers.Unread)})
}

func (g *googleClient) modify(ctx context.Context, account string, ids []gc.MessageID, add, remove []string) ([]gc.OpResult, error) {
	req := &gmailapi.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	return g.perID(ctx, account, ids, func(svc *gmailapi.Service, id string) error {
		_, err := svc.Users.Messages.Modify("me", id, req).Context(ctx).Do()
		return err
	})
}

// DefaultLogger is the process-wide logging setup shared by the commands.
func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
