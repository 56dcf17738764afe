package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/relaychat/internal/store"
	"github.com/vovakirdan/relaychat/internal/utils"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// statusRankSQL mirrors store.MessageStatus.Rank for use in WHERE clauses.
const statusRankSQL = `CASE status
	WHEN 'pending' THEN 0
	WHEN 'sent' THEN 1
	WHEN 'delivered' THEN 2
	WHEN 'read' THEN 3
	ELSE -1 END`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without touching disk.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a user with a unique username.
func (s *SQLiteStore) CreateUser(ctx context.Context, username string) (*store.User, error) {
	now := time.Now().UTC()
	id := utils.NewSortableID()

	query := `
		INSERT INTO users (id, username, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, username, store.UserStatusOffline, now, now); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, store.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.FindUser(ctx, id)
}

// FindUser retrieves a user by ID.
func (s *SQLiteStore) FindUser(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, status, last_seen, created_at
		FROM users
		WHERE id = ?
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// UpsertUserPresence records the online status and last-seen time of a user.
func (s *SQLiteStore) UpsertUserPresence(ctx context.Context, id string, status store.UserStatus, lastSeen time.Time) error {
	query := `
		INSERT INTO users (id, username, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_seen = excluded.last_seen
	`
	lastSeen = lastSeen.UTC()
	if _, err := s.db.ExecContext(ctx, query, id, id, status, lastSeen, lastSeen); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

// ListUsers lists all users, most recently seen first.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, username, status, last_seen, created_at
		FROM users
		ORDER BY last_seen DESC
	`
	return s.queryUsers(ctx, query)
}

// ListOnlineUsers lists users whose status is online.
func (s *SQLiteStore) ListOnlineUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, username, status, last_seen, created_at
		FROM users
		WHERE status = 'online'
		ORDER BY username ASC
	`
	return s.queryUsers(ctx, query)
}

// SearchUsers finds users whose username contains query (ASCII case-insensitive).
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]*store.User, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
		SELECT id, username, status, last_seen, created_at
		FROM users
		WHERE username LIKE '%' || ? || '%'
		ORDER BY username ASC
		LIMIT ?
	`
	return s.queryUsers(ctx, q, query, limit)
}

func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	if err := row.Scan(&user.ID, &user.Username, &user.Status, &user.LastSeen, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and returns its ID.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = utils.NewSortableID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = store.MessageStatusSent
	}

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, room_id, body, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.RoomID, msg.Body, msg.Status, msg.CreatedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return msg.ID, nil
}

// UpdateMessageStatus moves a message forward to status. It returns
// store.ErrStatusNotAdvanced when the message is already at or past status.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, id string, status store.MessageStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	query := `UPDATE messages SET status = ? WHERE id = ? AND ` + statusRankSQL + ` < ?`
	result, err := s.db.ExecContext(ctx, query, status, id, status.Rank())
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing changed: either the message is already at or past status, or it does not exist.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query message: %w", err)
	}
	return fmt.Errorf("message %s to %s: %w", id, status, store.ErrStatusNotAdvanced)
}

// MarkRoomRead advances unread messages addressed to receiverID in roomID to read.
func (s *SQLiteStore) MarkRoomRead(ctx context.Context, roomID, receiverID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE room_id = ? AND receiver_id = ? AND status IN ('sent', 'delivered')
		ORDER BY created_at ASC
	`, roomID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("query unread: %w", err)
	}

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return ids, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET status = 'read'
		WHERE room_id = ? AND receiver_id = ? AND status IN ('sent', 'delivered')
	`, roomID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// ListRoomMessages returns a page of messages in a room, newest first.
func (s *SQLiteStore) ListRoomMessages(ctx context.Context, roomID string, page, limit int) (*store.Page, error) {
	return s.listPage(ctx, `room_id = ?`, []any{roomID}, page, limit)
}

// ListConversation returns a page of messages exchanged between two users, newest first.
func (s *SQLiteStore) ListConversation(ctx context.Context, userA, userB string, page, limit int) (*store.Page, error) {
	where := `(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)`
	return s.listPage(ctx, where, []any{userA, userB, userB, userA}, page, limit)
}

func (s *SQLiteStore) listPage(ctx context.Context, where string, args []any, page, limit int) (*store.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	query := `
		SELECT id, sender_id, receiver_id, room_id, body, status, created_at
		FROM messages
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	queryArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.RoomID, &msg.Body, &msg.Status, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &store.Page{
		Messages:    messages,
		Total:       total,
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
	}, nil
}
