// Package identity implements the ticket/session authentication protocol:
// salted password hashing, nonce/token generation, and the two-step
// sessionticket -> session exchange with configurable TTLs.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"github.com/supermarx/karl/internal/store"
)

const (
	tokenSize = 32

	// DefaultTicketTTL is how long a sessionticket remains redeemable.
	DefaultTicketTTL = 5 * time.Minute
	// DefaultSessionTTL is how long a session remains valid once granted.
	DefaultSessionTTL = 6 * time.Hour
)

// argon2id parameters for the password/nonce-keyed hash: one pass over
// 64 MiB with 4 lanes, with the output length keyed to the 32-byte token
// size.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = uint32(tokenSize)
)

// H computes the keyed digest used both to hash a password under its salt
// and to derive a ticket's expected password from a user's stored hash and
// a nonce. The same primitive plays both roles.
func H(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// RandomToken returns a fresh CSPRNG token of the fixed 32-byte size used
// for salts, nonces, and session tokens.
func RandomToken() ([]byte, error) {
	b := make([]byte, tokenSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Service wires the session store to the hashing/TTL rules. When
// CheckPerms is false, password verification and session-token checks are
// skipped entirely; this is the --no-perms escape hatch for local development.
type Service struct {
	sessions   *store.SessionStore
	log        *zap.Logger
	CheckPerms bool

	// TicketTTL and SessionTTL may be raised or lowered per deployment;
	// NewService fills in the defaults.
	TicketTTL  time.Duration
	SessionTTL time.Duration
}

func NewService(sessions *store.SessionStore, log *zap.Logger, checkPerms bool) *Service {
	return &Service{
		sessions:   sessions,
		log:        log,
		CheckPerms: checkPerms,
		TicketTTL:  DefaultTicketTTL,
		SessionTTL: DefaultSessionTTL,
	}
}

// CreateUser registers a new account with a fresh salt and hashed password.
func (s *Service) CreateUser(ctx context.Context, name, password string) (store.KaruserID, error) {
	s.log.Debug("generating salt")
	salt, err := RandomToken()
	if err != nil {
		return 0, err
	}

	s.log.Debug("hashing password")
	hashed := H([]byte(password), salt)

	id, err := s.sessions.AddKaruser(ctx, store.Karluser{Name: name, PasswordSalt: salt, PasswordHashed: hashed})
	if err != nil {
		return 0, err
	}
	s.log.Info("added user", zap.String("name", name), zap.Int64("user_id", int64(id)))
	return id, nil
}

// Sessionticket is the caller-facing half of a ticket: the ticket ID, the
// server nonce, and the salt to hash the password against.
type Sessionticket struct {
	ID    store.SessionticketID
	Nonce []byte
	Salt  []byte
}

// GenerateSessionticket issues a fresh challenge for a named user. A
// missing user reports authentication_error, not not_found, so callers
// cannot use this endpoint to enumerate account names.
func (s *Service) GenerateSessionticket(ctx context.Context, name string) (Sessionticket, error) {
	user, err := s.sessions.GetKaruserByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Sessionticket{}, store.ErrAuthenticationError
		}
		return Sessionticket{}, err
	}

	s.log.Debug("generating nonce")
	nonce, err := RandomToken()
	if err != nil {
		return Sessionticket{}, err
	}

	id, err := s.sessions.AddSessionticket(ctx, store.Sessionticket{
		KaruserID: user.ID,
		Nonce:     nonce,
		Creation:  time.Now().UTC(),
	})
	if err != nil {
		return Sessionticket{}, err
	}
	s.log.Debug("created sessionticket", zap.Int64("sessionticket_id", int64(id)))

	return Sessionticket{ID: id, Nonce: nonce, Salt: user.PasswordSalt}, nil
}

// CreateSession redeems a sessionticket into a session token. ticketPassword
// is ignored when CheckPerms is false.
func (s *Service) CreateSession(ctx context.Context, ticketID store.SessionticketID, ticketPassword []byte) ([]byte, error) {
	ticket, err := s.sessions.GetSessionticket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	user, err := s.sessions.GetKaruser(ctx, ticket.KaruserID)
	if err != nil {
		return nil, err
	}

	if time.Since(ticket.Creation) > s.TicketTTL {
		return nil, store.Wrapf(store.KindSessionInvalid, "sessionticket no longer valid")
	}

	if s.CheckPerms {
		s.log.Debug("checking password")
		expected := H(user.PasswordHashed, ticket.Nonce)
		if subtle.ConstantTimeCompare(expected, ticketPassword) != 1 {
			return nil, store.ErrAuthenticationError
		}
	} else {
		s.log.Debug("not checking password, no-perms enabled")
	}

	token, err := RandomToken()
	if err != nil {
		return nil, err
	}

	sessionID, err := s.sessions.AddSession(ctx, store.Session{
		KaruserID: ticket.KaruserID,
		Token:     token,
		Creation:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("session created, access granted", zap.Int64("session_id", int64(sessionID)))

	return token, nil
}

// CheckSession validates a session token's existence and freshness. It is
// a no-op when CheckPerms is false.
func (s *Service) CheckSession(ctx context.Context, token []byte) error {
	if !s.CheckPerms {
		return nil
	}

	sess, err := s.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrSessionInvalid
		}
		return err
	}

	if time.Since(sess.Creation) > s.SessionTTL {
		return store.ErrSessionInvalid
	}

	s.log.Debug("validated session", zap.Int64("session_id", int64(sess.ID)))
	return nil
}
