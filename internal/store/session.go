package store

import (
	"context"
	"database/sql"

	"github.com/supermarx/karl/internal/rowcodec"
)

// SessionStore is the Karluser/Sessionticket/Session CRUD surface. It holds
// no authentication logic of its own; see internal/identity for the
// hashing and TTL rules built on top of it.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) AddKaruser(ctx context.Context, u Karluser) (KaruserID, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO karlusers (name, password_salt, password_hashed) VALUES ($1, $2, $3) RETURNING id",
		u.Name, u.PasswordSalt, u.PasswordHashed).Scan(&id)
	if err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	return KaruserID(id), nil
}

func (s *SessionStore) GetKaruser(ctx context.Context, id KaruserID) (Karluser, error) {
	return s.fetchKaruser(ctx, "id", int64(id))
}

func (s *SessionStore) GetKaruserByName(ctx context.Context, name string) (Karluser, error) {
	return s.fetchKaruser(ctx, "name", name)
}

func (s *SessionStore) fetchKaruser(ctx context.Context, column string, arg any) (Karluser, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+rowcodecJoin(rowcodec.Columns[Karluser]())+" FROM karlusers WHERE "+column+" = $1", arg)
	if err != nil {
		return Karluser{}, Wrap(KindBackendDown, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Karluser{}, ErrNotFound
	}
	u, err := rowcodec.ScanRow[Karluser](rows)
	if err != nil {
		return Karluser{}, Wrap(KindBackendDown, err)
	}
	return u, nil
}

func (s *SessionStore) AddSessionticket(ctx context.Context, st Sessionticket) (SessionticketID, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO sessiontickets (karluser_id, nonce, creation) VALUES ($1, $2, $3) RETURNING id",
		int64(st.KaruserID), st.Nonce, st.Creation).Scan(&id)
	if err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	return SessionticketID(id), nil
}

func (s *SessionStore) GetSessionticket(ctx context.Context, id SessionticketID) (Sessionticket, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+rowcodecJoin(rowcodec.Columns[Sessionticket]())+" FROM sessiontickets WHERE id = $1", int64(id))
	if err != nil {
		return Sessionticket{}, Wrap(KindBackendDown, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Sessionticket{}, ErrNotFound
	}
	st, err := rowcodec.ScanRow[Sessionticket](rows)
	if err != nil {
		return Sessionticket{}, Wrap(KindBackendDown, err)
	}
	return st, nil
}

func (s *SessionStore) AddSession(ctx context.Context, sess Session) (SessionID, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO sessions (karluser_id, token, creation) VALUES ($1, $2, $3) RETURNING id",
		int64(sess.KaruserID), sess.Token, sess.Creation).Scan(&id)
	if err != nil {
		return 0, Wrap(KindBackendDown, err)
	}
	return SessionID(id), nil
}

func (s *SessionStore) GetSessionByToken(ctx context.Context, token []byte) (Session, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+rowcodecJoin(rowcodec.Columns[Session]())+" FROM sessions WHERE token = $1", token)
	if err != nil {
		return Session{}, Wrap(KindBackendDown, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return Session{}, ErrNotFound
	}
	sess, err := rowcodec.ScanRow[Session](rows)
	if err != nil {
		return Session{}, Wrap(KindBackendDown, err)
	}
	return sess, nil
}

func rowcodecJoin(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}
