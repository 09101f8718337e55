package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"spaces/api/internal/optional"
	"spaces/api/internal/util"
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

// EnsureUser returns the user registered under email, creating it on first
// sight. A non-empty displayName overwrites the stored one.
func (s *PostgresStore) EnsureUser(ctx context.Context, email, displayName string) (User, error) {
	email = normalizeEmail(email)
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET display_name = CASE WHEN EXCLUDED.display_name = '' THEN users.display_name ELSE EXCLUDED.display_name END
		RETURNING id, email, display_name, picture_url, created_at
	`, util.NewID("usr"), email, displayName).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PictureURL, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, picture_url, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PictureURL, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// FindUsersByEmail resolves registered accounts, keyed by normalized email.
// Unknown emails are simply absent from the result.
func (s *PostgresStore) FindUsersByEmail(ctx context.Context, emails []string) (map[string]User, error) {
	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized = append(normalized, normalizeEmail(email))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, picture_url, created_at FROM users WHERE email = ANY($1)
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("find users by email: %w", err)
	}
	defer rows.Close()

	users := map[string]User{}
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PictureURL, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.Email] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

const spaceColumns = `id, owner_id, name, description, public_acl, thumbnail, thumbnail_width, thumbnail_height, result_count, is_default, default_type, views, created_at, updated_at`

func scanSpace(row interface{ Scan(...any) error }) (Space, error) {
	var item Space
	err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Name,
		&item.Description,
		&item.PublicACL,
		&item.Thumbnail,
		&item.ThumbnailWidth,
		&item.ThumbnailHeight,
		&item.ResultCount,
		&item.IsDefault,
		&item.DefaultType,
		&item.Views,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// InsertSpace creates the space and its owner grant together.
func (s *PostgresStore) InsertSpace(ctx context.Context, item Space) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert space: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	defaultType := item.DefaultType
	if defaultType == "" {
		defaultType = "Unspecified"
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO spaces (id, owner_id, name, description, is_default, default_type)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.OwnerID, item.Name, item.Description, item.IsDefault, defaultType); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert space: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO space_acls (space_id, user_id, level, granted_by)
		VALUES ($1, $2, 'Owner', $2)
	`, item.ID, item.OwnerID); err != nil {
		return fmt.Errorf("insert owner grant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert space: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id=$1`, spaceID))
}

func (s *PostgresStore) GetDefaultSpace(ctx context.Context, ownerID string) (Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE owner_id=$1 AND is_default`, ownerID))
}

func (s *PostgresStore) ListSpacesForUser(ctx context.Context, userID, kind string) ([]Space, error) {
	var query string
	switch kind {
	case ListInvited:
		query = `
			SELECT ` + prefixed("s", spaceColumns) + `
			FROM spaces s
			JOIN space_acls a ON a.space_id = s.id
			WHERE a.user_id = $1 AND a.level <> 'Owner'
			ORDER BY s.updated_at DESC`
	case ListVisited:
		query = `
			SELECT ` + prefixed("s", spaceColumns) + `
			FROM spaces s
			JOIN space_visits v ON v.space_id = s.id
			WHERE v.user_id = $1
			  AND s.public_acl
			  AND NOT EXISTS (SELECT 1 FROM space_acls a WHERE a.space_id = s.id AND a.user_id = $1)
			ORDER BY v.last_visited_at DESC`
	default:
		query = `
			SELECT ` + prefixed("s", spaceColumns) + `
			FROM spaces s
			JOIN space_acls a ON a.space_id = s.id
			WHERE a.user_id = $1
			ORDER BY s.is_default DESC, s.updated_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	items := make([]Space, 0)
	for rows.Next() {
		item, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return items, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// UpdateSpace applies only the provided fields. A null description clears it.
func (s *PostgresStore) UpdateSpace(ctx context.Context, spaceID string, patch SpacePatch) (bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{spaceID}
	add := func(column string, field optional.Field[string]) {
		if !field.Provided() {
			return
		}
		args = append(args, field.Or(""))
		sets = append(sets, column+"=$"+strconv.Itoa(len(args)))
	}
	add("name", patch.Name)
	add("description", patch.Description)

	result, err := s.db.ExecContext(ctx, `UPDATE spaces SET `+strings.Join(sets, ", ")+` WHERE id=$1`, args...)
	if err != nil {
		return false, fmt.Errorf("update space: %w", err)
	}
	return rowsChanged(result, "update space")
}

func (s *PostgresStore) DeleteSpace(ctx context.Context, spaceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM spaces WHERE id=$1 AND NOT is_default`, spaceID)
	if err != nil {
		return false, fmt.Errorf("delete space: %w", err)
	}
	return rowsChanged(result, "delete space")
}

func (s *PostgresStore) SetPublicACL(ctx context.Context, spaceID string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE spaces SET public_acl=$2, updated_at=NOW() WHERE id=$1
	`, spaceID, enabled)
	if err != nil {
		return fmt.Errorf("set public acl: %w", err)
	}
	changed, err := rowsChanged(result, "set public acl")
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

// RecordVisit counts a view and, for signed-in callers, remembers the visit.
func (s *PostgresStore) RecordVisit(ctx context.Context, spaceID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE spaces SET views = views + 1 WHERE id=$1`, spaceID); err != nil {
		return fmt.Errorf("count view: %w", err)
	}
	if userID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO space_visits (space_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (space_id, user_id) DO UPDATE SET last_visited_at=NOW()
	`, spaceID, userID)
	if err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

const grantSelect = `
	SELECT a.space_id, a.user_id, a.level, a.granted_by, a.created_at, a.updated_at, u.display_name, u.email, u.picture_url
	FROM space_acls a
	JOIN users u ON u.id = a.user_id`

func scanGrant(row interface{ Scan(...any) error }) (Grant, error) {
	var item Grant
	err := row.Scan(&item.SpaceID, &item.UserID, &item.Level, &item.GrantedBy, &item.CreatedAt, &item.UpdatedAt, &item.DisplayName, &item.Email, &item.PictureURL)
	return item, err
}

func (s *PostgresStore) ListGrants(ctx context.Context, spaceID string) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, grantSelect+`
		WHERE a.space_id=$1
		ORDER BY CASE a.level WHEN 'Owner' THEN 0 ELSE 1 END, a.created_at ASC
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	items := make([]Grant, 0)
	for rows.Next() {
		item, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetGrant(ctx context.Context, spaceID, userID string) (Grant, error) {
	return scanGrant(s.db.QueryRowContext(ctx, grantSelect+` WHERE a.space_id=$1 AND a.user_id=$2`, spaceID, userID))
}

// UpsertGrant never touches the owner's row.
func (s *PostgresStore) UpsertGrant(ctx context.Context, grant Grant) error {
	return s.UpsertGrants(ctx, []Grant{grant})
}

// UpsertGrants writes a batch of grants in one transaction. Either every
// grant lands or none do.
func (s *PostgresStore) UpsertGrants(ctx context.Context, grants []Grant) error {
	if len(grants) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert grants: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	touched := map[string]bool{}
	for _, grant := range grants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO space_acls (space_id, user_id, level, granted_by)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (space_id, user_id) DO UPDATE
			SET level=EXCLUDED.level, granted_by=EXCLUDED.granted_by, updated_at=NOW()
			WHERE space_acls.level <> 'Owner'
		`, grant.SpaceID, grant.UserID, grant.Level, grant.GrantedBy); err != nil {
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("upsert grant: %w", err)
		}
		touched[grant.SpaceID] = true
	}
	for spaceID := range touched {
		if _, err := tx.ExecContext(ctx, `UPDATE spaces SET updated_at=NOW() WHERE id=$1`, spaceID); err != nil {
			return fmt.Errorf("touch space: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert grants: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteGrant(ctx context.Context, spaceID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM space_acls WHERE space_id=$1 AND user_id=$2 AND level <> 'Owner'
	`, spaceID, userID)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	return rowsChanged(result, "delete grant")
}

const commentSelect = `
	SELECT c.id, c.space_id, c.author_id, c.body, c.created_at, c.updated_at, u.display_name, u.email, u.picture_url
	FROM space_comments c
	JOIN users u ON u.id = c.author_id`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var item Comment
	err := row.Scan(&item.ID, &item.SpaceID, &item.AuthorID, &item.Body, &item.CreatedAt, &item.UpdatedAt, &item.AuthorName, &item.AuthorEmail, &item.AuthorPicture)
	return item, err
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO space_comments (id, space_id, author_id, body)
		VALUES ($1, $2, $3, $4)
	`, comment.ID, comment.SpaceID, comment.AuthorID, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE spaces SET updated_at=NOW() WHERE id=$1`, comment.SpaceID); err != nil {
		return fmt.Errorf("touch space: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, spaceID, commentID string) (Comment, error) {
	return scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.space_id=$1 AND c.id=$2`, spaceID, commentID))
}

func (s *PostgresStore) ListComments(ctx context.Context, spaceID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE c.space_id=$1 ORDER BY c.created_at ASC, c.id ASC`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, spaceID, commentID, body string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE space_comments SET body=$3, updated_at=NOW() WHERE space_id=$1 AND id=$2
	`, spaceID, commentID, body)
	if err != nil {
		return false, fmt.Errorf("update comment: %w", err)
	}
	return rowsChanged(result, "update comment")
}

func (s *PostgresStore) DeleteComment(ctx context.Context, spaceID, commentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM space_comments WHERE space_id=$1 AND id=$2`, spaceID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	return rowsChanged(result, "delete comment")
}

const entitySelect = `
	SELECT e.id, e.doc_id, e.space_id, e.url, e.title, e.snippet, e.result_type, e.content_type, e.content_url,
	       e.content_width, e.content_height, e.thumbnail, e.display_title, e.display_snippet, e.display_thumbnail,
	       e.note, e.snapshot_pending, e.snapshot_kind, e.snapshot_error, e.created_by, e.created_at, e.updated_at,
	       u.display_name, u.email, u.picture_url
	FROM space_entities e
	JOIN users u ON u.id = e.created_by`

func scanEntity(row interface{ Scan(...any) error }) (Entity, error) {
	var item Entity
	var displayTitle, displaySnippet, displayThumbnail sql.NullString
	err := row.Scan(
		&item.ID,
		&item.DocID,
		&item.SpaceID,
		&item.URL,
		&item.Title,
		&item.Snippet,
		&item.ResultType,
		&item.ContentType,
		&item.ContentURL,
		&item.ContentWidth,
		&item.ContentHeight,
		&item.Thumbnail,
		&displayTitle,
		&displaySnippet,
		&displayThumbnail,
		&item.Note,
		&item.SnapshotPending,
		&item.SnapshotKind,
		&item.SnapshotError,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.CreatorName,
		&item.CreatorEmail,
		&item.CreatorPicture,
	)
	if err != nil {
		return Entity{}, err
	}
	item.DisplayTitle = nullableString(displayTitle)
	item.DisplaySnippet = nullableString(displaySnippet)
	item.DisplayThumbnail = nullableString(displayThumbnail)
	return item, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (s *PostgresStore) InsertEntity(ctx context.Context, entity Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert entity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snapshotKind := entity.SnapshotKind
	if snapshotKind == "" {
		snapshotKind = "Unspecified"
	}
	resultType := entity.ResultType
	if resultType == "" {
		resultType = "web"
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO space_entities (id, doc_id, space_id, url, title, snippet, result_type, content_type, content_url,
			content_width, content_height, thumbnail, note, snapshot_pending, snapshot_kind, snapshot_error, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, entity.ID, entity.DocID, entity.SpaceID, entity.URL, entity.Title, entity.Snippet, resultType, entity.ContentType,
		entity.ContentURL, entity.ContentWidth, entity.ContentHeight, entity.Thumbnail, entity.Note, entity.SnapshotPending,
		snapshotKind, entity.SnapshotError, entity.CreatedBy); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE spaces SET result_count = result_count + 1, updated_at=NOW() WHERE id=$1
	`, entity.SpaceID); err != nil {
		return fmt.Errorf("bump result count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert entity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, resultID string) (Entity, error) {
	return scanEntity(s.db.QueryRowContext(ctx, entitySelect+` WHERE e.id=$1`, resultID))
}

func (s *PostgresStore) ListEntities(ctx context.Context, spaceID string) ([]Entity, error) {
	return s.queryEntities(ctx, entitySelect+` WHERE e.space_id=$1 ORDER BY e.created_at DESC, e.id ASC`, spaceID)
}

// AllEntities lists every saved entity, for rebuilding the search index.
func (s *PostgresStore) AllEntities(ctx context.Context) ([]Entity, error) {
	return s.queryEntities(ctx, entitySelect+` ORDER BY e.created_at ASC, e.id ASC`)
}

func (s *PostgresStore) queryEntities(ctx context.Context, query string, args ...any) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	items := make([]Entity, 0)
	for rows.Next() {
		item, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return items, nil
}

// DeleteEntities removes every listed entity or none of them. Any id that
// does not belong to the space yields ErrNotFound.
func (s *PostgresStore) DeleteEntities(ctx context.Context, spaceID string, resultIDs []string) (int, error) {
	ids := dedupe(resultIDs)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete entities: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM space_entities WHERE space_id=$1 AND id = ANY($2)`, spaceID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete entities: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete entities rows: %w", err)
	}
	if int(affected) != len(ids) {
		return 0, ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE spaces SET result_count = GREATEST(result_count - $2, 0), updated_at=NOW() WHERE id=$1
	`, spaceID, affected); err != nil {
		return 0, fmt.Errorf("drop result count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete entities: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) UpdateEntityDisplay(ctx context.Context, spaceID, resultID string, patch DisplayPatch) (bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{spaceID, resultID}
	add := func(column string, field optional.Field[string]) {
		if !field.Provided() {
			return
		}
		if v, ok := field.Get(); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
		sets = append(sets, column+"=$"+strconv.Itoa(len(args)))
	}
	add("display_title", patch.Title)
	add("display_snippet", patch.Snippet)
	add("display_thumbnail", patch.Thumbnail)

	result, err := s.db.ExecContext(ctx, `UPDATE space_entities SET `+strings.Join(sets, ", ")+` WHERE space_id=$1 AND id=$2`, args...)
	if err != nil {
		return false, fmt.Errorf("update entity display: %w", err)
	}
	return rowsChanged(result, "update entity display")
}

func (s *PostgresStore) AttachSnapshot(ctx context.Context, resultID string, att SnapshotAttachment) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE space_entities
		SET content_url=$2, content_type=$3, thumbnail=CASE WHEN $4 = '' THEN thumbnail ELSE $4 END,
		    content_width=$5, content_height=$6, snapshot_pending=FALSE, snapshot_error='', updated_at=NOW()
		WHERE id=$1
	`, resultID, att.ContentURL, att.ContentType, att.Thumbnail, att.Width, att.Height)
	if err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	changed, err := rowsChanged(result, "attach snapshot")
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailSnapshot(ctx context.Context, resultID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE space_entities SET snapshot_pending=FALSE, snapshot_error=$2, updated_at=NOW() WHERE id=$1
	`, resultID, reason)
	if err != nil {
		return fmt.Errorf("fail snapshot: %w", err)
	}
	return nil
}

// SearchEntities is the fallback used when the search index is unavailable.
// Matches are ranked with ts_rank over the weighted fts column: title, then
// snippet, then note, then URL.
func (s *PostgresStore) SearchEntities(ctx context.Context, spaceIDs []string, query string, limit int) ([]Entity, error) {
	query = strings.TrimSpace(query)
	if len(spaceIDs) == 0 || query == "" {
		return []Entity{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.queryEntities(ctx, entitySelect+`
		CROSS JOIN plainto_tsquery('english', $2) AS q
		WHERE e.space_id = ANY($1) AND e.fts @@ q
		ORDER BY ts_rank(e.fts, q) DESC, e.updated_at DESC, e.id ASC
		LIMIT $3
	`, spaceIDs, query, limit)
}

func rowsChanged(result sql.Result, op string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", op, err)
	}
	return affected > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// isUniqueViolation reports a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	return hasSQLState(err, "23505")
}

// isForeignKeyViolation reports a Postgres foreign_key_violation.
func isForeignKeyViolation(err error) bool {
	return hasSQLState(err, "23503")
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == code
}
