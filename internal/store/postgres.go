package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, LOWER($3), $4)
		RETURNING id, display_name, email, created_at, updated_at
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash).Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email
		FROM users
		WHERE display_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		ORDER BY display_name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// Documents

const documentColumns = `id, title, content, visibility, author_id, current_version, last_version_created_at, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	err := row.Scan(
		&item.ID, &item.Title, &item.Content, &item.Visibility, &item.AuthorID,
		&item.CurrentVersion, &item.LastVersionCreatedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, visibility, author_id, current_version)
		VALUES ($1, $2, $3, $4, $5, 0)
	`, item.ID, item.Title, item.Content, item.Visibility, item.AuthorID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID)
	return scanDocument(row)
}

// ListDocumentsForUser returns documents the user authored, documents shared
// with them, and public documents, most recently updated first.
func (s *PostgresStore) ListDocumentsForUser(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		WHERE d.author_id = $1
			OR d.visibility = 'public'
			OR EXISTS (SELECT 1 FROM document_shares ds WHERE ds.document_id = d.id AND ds.user_id = $1)
		ORDER BY d.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// UpdateDocumentContent writes the document's mutable fields with a checked
// write: the update only applies when current_version still equals
// expectedVersion. Returns false when another writer got there first.
func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, title, content, visibility string, expectedVersion int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, content=$3, visibility=$4, updated_at=NOW()
		WHERE id=$1 AND current_version=$5
	`, documentID, title, content, visibility, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update document rows: %w", err)
	}
	return affected > 0, nil
}

// AdvanceDocumentVersion moves the version pointer from expectedVersion to
// nextVersion. The WHERE clause makes the increment-and-read atomic: two
// concurrent writers cannot both claim the same version number.
func (s *PostgresStore) AdvanceDocumentVersion(ctx context.Context, documentID string, expectedVersion, nextVersion int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET current_version=$3, last_version_created_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND current_version=$2
	`, documentID, expectedVersion, nextVersion)
	if err != nil {
		return false, fmt.Errorf("advance document version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance document version rows: %w", err)
	}
	return affected > 0, nil
}

// Shares

func (s *PostgresStore) ListShares(ctx context.Context, documentID string) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.document_id, ds.user_id, ds.permission, ds.created_at, u.display_name, u.email
		FROM document_shares ds
		JOIN users u ON u.id = ds.user_id
		WHERE ds.document_id=$1
		ORDER BY ds.created_at
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	items := make([]Share, 0)
	for rows.Next() {
		var item Share
		if err := rows.Scan(&item.DocumentID, &item.UserID, &item.Permission, &item.CreatedAt, &item.UserName, &item.UserEmail); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return items, nil
}

// AddShareIfAbsent inserts a share entry unless one already exists for the
// user. An existing entry keeps its permission, so mention auto-share never
// downgrades an explicit edit grant.
func (s *PostgresStore) AddShareIfAbsent(ctx context.Context, documentID, userID, permission string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_shares (document_id, user_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, user_id) DO NOTHING
	`, documentID, userID, permission)
	if err != nil {
		return fmt.Errorf("add share: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertShare(ctx context.Context, documentID, userID, permission string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_shares (document_id, user_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, user_id) DO UPDATE SET permission=EXCLUDED.permission
	`, documentID, userID, permission)
	if err != nil {
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveShare(ctx context.Context, documentID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM document_shares WHERE document_id=$1 AND user_id=$2
	`, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("remove share: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove share rows: %w", err)
	}
	return affected > 0, nil
}

// Versions

const versionColumns = `id, document_id, version, title, content, visibility, changed_by, change_type, change_summary, word_count, character_count, created_at`

func scanVersion(row interface{ Scan(...any) error }) (Version, error) {
	var item Version
	err := row.Scan(
		&item.ID, &item.DocumentID, &item.Version, &item.Title, &item.Content, &item.Visibility,
		&item.ChangedBy, &item.ChangeType, &item.ChangeSummary, &item.WordCount, &item.CharacterCount, &item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertVersion(ctx context.Context, item Version) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO versions (id, document_id, version, title, content, visibility, changed_by, change_type, change_summary, word_count, character_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.DocumentID, item.Version, item.Title, item.Content, item.Visibility,
		item.ChangedBy, item.ChangeType, item.ChangeSummary, item.WordCount, item.CharacterCount)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID string, version int) (Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions WHERE document_id=$1 AND version=$2
	`, documentID, version)
	return scanVersion(row)
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string, limit int) ([]Version, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions
		WHERE document_id=$1
		ORDER BY version DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		item, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// Notifications

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, document_id, mentioned_by)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.UserID, item.DocumentID, item.MentionedBy)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications newest-first, the
// read position of a head-inserted list.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.user_id, n.document_id, n.mentioned_by, n.read, n.created_at,
			COALESCE(d.title, ''), COALESCE(u.display_name, '')
		FROM notifications n
		LEFT JOIN documents d ON d.id = n.document_id
		LEFT JOIN users u ON u.id = n.mentioned_by
		WHERE n.user_id=$1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.DocumentID, &item.MentionedBy, &item.Read, &item.CreatedAt, &item.DocumentTitle, &item.MentionedByName); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2
	`, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification rows: %w", err)
	}
	return affected > 0, nil
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, used to translate duplicate signups and version races.
func IsUniqueViolation(err error) bool {
	type sqlState interface{ SQLState() string }
	var coded sqlState
	if errors.As(err, &coded) {
		return coded.SQLState() == "23505"
	}
	return false
}
