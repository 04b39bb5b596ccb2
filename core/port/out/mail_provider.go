package out

import (
	"context"

	"replyflow_server/core/domain"
)

// CredentialStore decrypts mailbox secrets on read. Implementations must not
// cache plaintext; callers keep the secret scoped to one fetch/send call.
type CredentialStore interface {
	Secret(mailbox *domain.Mailbox) (*domain.MailboxSecret, error)
}

// MailboxFetcher lists messages above the mailbox watermark over the mail
// retrieval protocol. Errors are coded CONNECTION_ERROR (dial/auth) or
// PROTOCOL_ERROR (malformed server response).
type MailboxFetcher interface {
	Fetch(ctx context.Context, mailbox *domain.Mailbox, secret *domain.MailboxSecret) ([]*domain.RawMessage, error)
}

// OutboundMail is one message handed to the submission protocol.
type OutboundMail struct {
	From    string
	To      string
	Subject string
	Body    string
}

// MailSender submits one message through the tenant mailbox's SMTP endpoint
// and returns the server response line for the send log.
type MailSender interface {
	Send(ctx context.Context, mailbox *domain.Mailbox, secret *domain.MailboxSecret, mail *OutboundMail) (string, error)
}
