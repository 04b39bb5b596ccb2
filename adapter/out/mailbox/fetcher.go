// Package mailbox implements the IMAP fetch and SMTP submission adapters.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// IMAPFetcher implements out.MailboxFetcher over go-imap.
type IMAPFetcher struct {
	oauth OAuthConfig
}

// NewIMAPFetcher creates a fetcher. The OAuth config is only consulted for
// mailboxes using XOAUTH2.
func NewIMAPFetcher(oauth OAuthConfig) *IMAPFetcher {
	return &IMAPFetcher{oauth: oauth}
}

// Fetch lists messages with UID strictly above the mailbox watermark. The
// decrypted secret lives only for the duration of this call.
func (f *IMAPFetcher) Fetch(ctx context.Context, mb *domain.Mailbox, secret *domain.MailboxSecret) ([]*domain.RawMessage, error) {
	c, err := f.connect(ctx, mb, secret)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	folder := mb.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, true); err != nil {
		return nil, apperr.ProtocolError(mb.IMAPHost, fmt.Errorf("select %s: %w", folder, err))
	}

	// UID(watermark+1):* matches everything not yet ingested. An empty
	// mailbox interval still matches the last message, which the watermark
	// check upstream filters out.
	interval := new(imap.SeqSet)
	interval.AddRange(mb.LastUID+1, 0)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = interval
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, apperr.ProtocolError(mb.IMAPHost, fmt.Errorf("uid search: %w", err))
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var results []*domain.RawMessage
	for msg := range messages {
		raw, parseErr := parseMessage(msg, section)
		if parseErr != nil {
			// One malformed message must not sink the whole pass.
			continue
		}
		results = append(results, raw)
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, apperr.ProtocolError(mb.IMAPHost, fmt.Errorf("uid fetch: %w", err))
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return results, nil
}

// connect dials, optionally upgrades to TLS, and authenticates.
func (f *IMAPFetcher) connect(ctx context.Context, mb *domain.Mailbox, secret *domain.MailboxSecret) (*client.Client, error) {
	address := fmt.Sprintf("%s:%d", mb.IMAPHost, mb.IMAPPort)
	tlsConfig := &tls.Config{
		ServerName:         mb.IMAPHost,
		InsecureSkipVerify: mb.TLSMode == domain.TLSInsecure,
	}

	var (
		c   *client.Client
		err error
	)
	switch mb.TLSMode {
	case domain.TLSStartTLS:
		c, err = client.Dial(address)
		if err == nil {
			err = c.StartTLS(tlsConfig)
		}
	default:
		c, err = client.DialTLS(address, tlsConfig)
	}
	if err != nil {
		return nil, apperr.ConnectionError(mb.IMAPHost, err)
	}

	if err := f.login(ctx, c, mb, secret); err != nil {
		_ = c.Logout()
		return nil, apperr.ConnectionError(mb.IMAPHost, err)
	}
	return c, nil
}

func (f *IMAPFetcher) login(ctx context.Context, c *client.Client, mb *domain.Mailbox, secret *domain.MailboxSecret) error {
	if mb.AuthMethod == domain.AuthXOAuth2 {
		token, err := f.oauth.accessToken(ctx, secret.Password)
		if err != nil {
			return err
		}
		return c.Authenticate(newXOAuth2Client(secret.Username, token))
	}
	return c.Login(secret.Username, secret.Password)
}
