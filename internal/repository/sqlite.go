package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/xstash/internal/domain"
)

// OpenSQLite opens (creating if needed) the SQLite database at path.
// The pool is limited to one connection so read-modify-write sequences from
// different goroutines are serialized.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	return db, nil
}

// SQLiteBookmarkRepository implements BookmarkRepository on SQLite.
type SQLiteBookmarkRepository struct {
	db   *sql.DB
	feed *broadcaster
}

// NewSQLiteBookmarkRepository creates the bookmarks table if needed.
func NewSQLiteBookmarkRepository(db *sql.DB) (*SQLiteBookmarkRepository, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bookmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tweet_id INTEGER,
			file_path TEXT NOT NULL,
			source_url TEXT,
			author TEXT,
			saved_at INTEGER NOT NULL,
			posted_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_bookmarks_saved_at ON bookmarks(saved_at);
		CREATE INDEX IF NOT EXISTS idx_bookmarks_author ON bookmarks(author);
	`)
	if err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	r := &SQLiteBookmarkRepository{db: db}
	r.feed = newBroadcaster(r.List)
	return r, nil
}

const bookmarkColumns = `id, tweet_id, file_path, source_url, author, saved_at, posted_at`

// Insert stores a new bookmark.
func (r *SQLiteBookmarkRepository) Insert(ctx context.Context, b *domain.Bookmark) (int64, error) {
	savedAt := b.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO bookmarks (tweet_id, file_path, source_url, author, saved_at, posted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullInt(int64(b.TweetID)),
		b.FilePath,
		nullString(b.SourceURL),
		nullString(domain.NormalizeAuthor(b.Author)),
		savedAt.UnixMilli(),
		nullTime(b.PostedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert bookmark: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	r.feed.publish(ctx)
	return id, nil
}

// Get retrieves a bookmark by ID.
func (r *SQLiteBookmarkRepository) Get(ctx context.Context, id int64) (*domain.Bookmark, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ?`, id)
	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookmarkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bookmark: %w", err)
	}
	return b, nil
}

// List returns all bookmarks, most recently saved first.
func (r *SQLiteBookmarkRepository) List(ctx context.Context) ([]*domain.Bookmark, error) {
	return r.FindWhere(ctx, domain.BookmarkFilter{})
}

// FindWhere returns bookmarks matching filter.
func (r *SQLiteBookmarkRepository) FindWhere(ctx context.Context, filter domain.BookmarkFilter) ([]*domain.Bookmark, error) {
	var conditions []string
	var args []interface{}

	if filter.AuthorMissing {
		conditions = append(conditions, "(author IS NULL OR TRIM(author) = '' OR LOWER(author) = 'unknown')")
	}
	if filter.SourcePlaceholder {
		conditions = append(conditions, "(source_url IS NULL OR source_url = '' OR source_url LIKE ?)")
		args = append(args, "%"+domain.PlaceholderStatusPath+"%")
	}
	if filter.RequireTweetID {
		conditions = append(conditions, "tweet_id IS NOT NULL")
	}
	if filter.Author != "" {
		conditions = append(conditions, "author = ?")
		args = append(args, filter.Author)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM bookmarks %s ORDER BY saved_at DESC, id DESC`, bookmarkColumns, whereClause)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := make([]*domain.Bookmark, 0)
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return bookmarks, nil
}

// UpdateField sets author or source_url on one bookmark.
func (r *SQLiteBookmarkRepository) UpdateField(ctx context.Context, id int64, field domain.BookmarkField, value string) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidField, field)
	}
	if field == domain.FieldAuthor {
		value = domain.NormalizeAuthor(value)
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE bookmarks SET %s = ? WHERE id = ?`, field),
		nullString(value), id,
	)
	if err != nil {
		return fmt.Errorf("update bookmark: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBookmarkNotFound
	}

	r.feed.publish(ctx)
	return nil
}

// DeleteByID removes a bookmark row.
func (r *SQLiteBookmarkRepository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete bookmark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		r.feed.publish(ctx)
	}
	return n, nil
}

// Observe streams bookmark list snapshots until ctx is done.
func (r *SQLiteBookmarkRepository) Observe(ctx context.Context) <-chan []*domain.Bookmark {
	return r.feed.subscribe(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBookmark(s rowScanner) (*domain.Bookmark, error) {
	var (
		b        domain.Bookmark
		tweetID  sql.NullInt64
		source   sql.NullString
		author   sql.NullString
		savedAt  int64
		postedAt sql.NullInt64
	)
	if err := s.Scan(&b.ID, &tweetID, &b.FilePath, &source, &author, &savedAt, &postedAt); err != nil {
		return nil, err
	}
	b.TweetID = domain.TweetID(tweetID.Int64)
	b.SourceURL = source.String
	b.Author = author.String
	b.SavedAt = time.UnixMilli(savedAt).UTC()
	if postedAt.Valid {
		b.PostedAt = time.UnixMilli(postedAt.Int64).UTC()
	}
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
