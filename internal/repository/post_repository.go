package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow-engine/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	// ListScheduledDue returns scheduled posts whose scheduled time is at or before the given instant,
	// oldest first.
	ListScheduledDue(ctx context.Context, before time.Time) ([]*models.Post, error)
	Update(ctx context.Context, id int64, upd *models.PostUpdate) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, platform, content, media_urls, alt_texts, hashtags,
	COALESCE(content_warning, ''), status, scheduled_at, published_at,
	COALESCE(external_post_id, ''), COALESCE(external_post_url, ''), COALESCE(error_message, ''),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var scheduledAt, publishedAt sql.NullTime
	err := row.Scan(&post.ID, &post.UserID, &post.Platform, &post.Content,
		pq.Array(&post.MediaURLs), pq.Array(&post.AltTexts), pq.Array(&post.Hashtags),
		&post.ContentWarning, &post.Status, &scheduledAt, &publishedAt,
		&post.ExternalPostID, &post.ExternalPostURL, &post.ErrorMessage,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		post.ScheduledAt = &scheduledAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListScheduledDue(ctx context.Context, before time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, id int64, upd *models.PostUpdate) error {
	if upd == nil {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.PublishedAt != nil {
		add("published_at", *upd.PublishedAt)
	}
	if upd.ExternalPostID != nil {
		add("external_post_id", *upd.ExternalPostID)
	}
	if upd.ExternalPostURL != nil {
		add("external_post_url", *upd.ExternalPostURL)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE posts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		return fmt.Errorf("post %d not found", id)
	}
	return nil
}
