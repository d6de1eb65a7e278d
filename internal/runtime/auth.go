package runtime

import (
	"context"
	"fmt"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/joshsymonds/mailsweep/internal/config"
	gc "github.com/joshsymonds/mailsweep/internal/gmail"
)

// NewGmailClient authenticates every requested account from its credential
// directory under the config root and returns a client spanning them all.
// Rule application mutates messages, so the modify scope is always
// requested.
func NewGmailClient(ctx context.Context, cfg config.Config, accounts []string) (gc.Client, error) {
	services := make(map[string]*gmailapi.Service, len(accounts))
	for _, account := range accounts {
		dir := cfg.CredentialsDir(account)
		svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, dir, gmailapi.GmailModifyScope)
		if err != nil {
			return nil, fmt.Errorf("authenticate account %q from %s: %w", account, dir, err)
		}
		services[account] = svc
	}
	return NewGoogleAPIClient(services, cfg.Markers()), nil
}
