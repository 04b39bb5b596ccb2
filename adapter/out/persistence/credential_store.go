package persistence

import (
	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
	"replyflow_server/pkg/crypto"
)

// CredentialStore implements out.CredentialStore. Secrets stay encrypted in
// the mailbox row; this wrapper decrypts on read and never caches plaintext.
type CredentialStore struct {
	enc *crypto.Encryptor
}

// NewCredentialStore creates a credential store over the given encryptor.
func NewCredentialStore(enc *crypto.Encryptor) *CredentialStore {
	return &CredentialStore{enc: enc}
}

// Secret decrypts the mailbox credential for one fetch or send call.
func (s *CredentialStore) Secret(mailbox *domain.Mailbox) (*domain.MailboxSecret, error) {
	if mailbox.SecretEnc == "" {
		return nil, apperr.ConfigError("mailbox has no stored credential")
	}

	plaintext, err := s.enc.Decrypt(mailbox.SecretEnc)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigError, "mailbox credential decryption failed", 500)
	}

	return &domain.MailboxSecret{
		Username: mailbox.Username,
		Password: plaintext,
	}, nil
}
