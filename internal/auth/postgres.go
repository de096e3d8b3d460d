package auth

import (
	"context"
	"database/sql"

	"campusgate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore       { return &userStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore { return &sessionStore{db: s.db} }
func (s *PGStore) Audit() AuditStore      { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, email, username, password_hash, first_name, last_name, role, is_active, is_verified, last_login, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u         User
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&role, &u.IsActive, &u.IsVerified, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role, _ = ParseRole(role)
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

func (s *userStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *userStore) FindByEmailOrUsername(ctx context.Context, emailOrUsername string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1 or username=$1`, emailOrUsername)
	return scanUser(row)
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, username, password_hash, first_name, last_name, role, is_active, is_verified)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Role.String(), u.IsActive, u.IsVerified,
	)
	return err
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.exec(ctx, `update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
}

func (s *userStore) UpdateRole(ctx context.Context, userID string, role Role) error {
	return s.exec(ctx, `update users set role=$2, updated_at=now() where id=$1`, userID, role.String())
}

func (s *userStore) SetActive(ctx context.Context, userID string, active bool) error {
	return s.exec(ctx, `update users set is_active=$2, updated_at=now() where id=$1`, userID, active)
}

func (s *userStore) SetVerified(ctx context.Context, userID string, verified bool) error {
	return s.exec(ctx, `update users set is_verified=$2, updated_at=now() where id=$1`, userID, verified)
}

func (s *userStore) TouchLastLogin(ctx context.Context, userID string) error {
	return s.exec(ctx, `update users set last_login=now() where id=$1`, userID)
}

func (s *userStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Session store ------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

const sessionColumns = `id, user_id, session_token, ip_address, user_agent, impersonated_by, is_impersonation, is_active, created_at, expires_at, last_activity`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		sess          Session
		ip, ua, impBy sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.SessionToken, &ip, &ua, &impBy,
		&sess.IsImpersonation, &sess.IsActive, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastActivity); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	sess.ImpersonatedBy = impBy.String
	return &sess, nil
}

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	var impBy any
	if sess.ImpersonatedBy != "" {
		impBy = sess.ImpersonatedBy
	}
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, session_token, ip_address, user_agent, impersonated_by, is_impersonation, is_active, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sess.ID, sess.UserID, sess.SessionToken, sess.IPAddress, sess.UserAgent, impBy, sess.IsImpersonation, sess.IsActive, sess.ExpiresAt,
	)
	return err
}

func (s *sessionStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where session_token=$1`, token)
	return scanSession(row)
}

func (s *sessionStore) FindActiveImpersonation(ctx context.Context, userID, impersonatedBy string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions
		 where user_id=$1 and impersonated_by=$2 and is_impersonation=true and is_active=true
		 order by created_at desc limit 1`, userID, impersonatedBy)
	return scanSession(row)
}

func (s *sessionStore) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions
		 where user_id=$1 and is_active=true and expires_at > now() order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *sessionStore) Revoke(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set is_active=false where id=$1 and is_active=true`, sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sessionStore) RevokeAllForUser(ctx context.Context, userID string, includeImpersonation bool) (int64, error) {
	query := `update sessions set is_active=false where user_id=$1 and is_active=true`
	if !includeImpersonation {
		query += ` and is_impersonation=false`
	}
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) TouchActivity(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set last_activity=now() where id=$1`, sessionID)
	return err
}

func (s *sessionStore) DeactivateExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set is_active=false where is_active=true and expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Audit store --------------------------------------------------------------
type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, user_id, action, details, occurred_at)
		 values($1,$2,$3,$4,$5)`,
		entry.ID, entry.UserID, entry.Action, entry.Details, entry.Timestamp,
	)
	return err
}
