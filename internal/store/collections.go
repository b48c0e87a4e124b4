package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const collectionColumns = `
	id, tenant_id, title, description, memory_date, created_by,
	is_locked, lock_visibility, unlock_type, unlock_at, unlock_hint,
	task_description, task_completed,
	show_title, show_description, show_item_count, show_created_date, show_blurred_preview,
	blur_strength, created_at, updated_at
`

func scanCollection(row interface{ Scan(...any) error }) (MemoryCollection, error) {
	var item MemoryCollection
	err := row.Scan(
		&item.ID,
		&item.TenantID,
		&item.Title,
		&item.Description,
		&item.MemoryDate,
		&item.CreatedBy,
		&item.IsLocked,
		&item.LockVisibility,
		&item.UnlockType,
		&item.UnlockAt,
		&item.UnlockHint,
		&item.TaskDescription,
		&item.TaskCompleted,
		&item.ShowTitle,
		&item.ShowDescription,
		&item.ShowItemCount,
		&item.ShowCreatedDate,
		&item.ShowBlurred,
		&item.BlurStrength,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertCollection(ctx context.Context, item MemoryCollection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_collections (
			id, tenant_id, title, description, memory_date, created_by,
			is_locked, lock_visibility, unlock_type, unlock_at, unlock_hint,
			task_description,
			show_title, show_description, show_item_count, show_created_date, show_blurred_preview,
			blur_strength
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		item.ID, item.TenantID, item.Title, item.Description, item.MemoryDate, item.CreatedBy,
		item.IsLocked, item.LockVisibility, item.UnlockType, item.UnlockAt, item.UnlockHint,
		item.TaskDescription,
		item.ShowTitle, item.ShowDescription, item.ShowItemCount, item.ShowCreatedDate, item.ShowBlurred,
		item.BlurStrength,
	)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCollection(ctx context.Context, tenantID, collectionID string) (MemoryCollection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+collectionColumns+`
		FROM memory_collections
		WHERE tenant_id=$1 AND id=$2
	`, tenantID, collectionID)
	return scanCollection(row)
}

func (s *PostgresStore) ListCollections(ctx context.Context, tenantID string) ([]MemoryCollection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+collectionColumns+`
		FROM memory_collections
		WHERE tenant_id=$1
		ORDER BY COALESCE(memory_date, created_at) DESC, created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	items := make([]MemoryCollection, 0)
	for rows.Next() {
		item, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return items, nil
}

// UpdateCollection applies the fields carried by the patch. Columns are drawn
// from a fixed list; nothing from the request reaches the SQL text.
func (s *PostgresStore) UpdateCollection(ctx context.Context, tenantID, collectionID string, patch CollectionPatch) error {
	sets := make([]string, 0, 13)
	args := []any{tenantID, collectionID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.MemoryDate != nil {
		add("memory_date", *patch.MemoryDate)
	}
	if patch.LockVisibility != nil {
		add("lock_visibility", *patch.LockVisibility)
	}
	if patch.UnlockType != nil {
		add("unlock_type", *patch.UnlockType)
	}
	if patch.UnlockHint != nil {
		add("unlock_hint", *patch.UnlockHint)
	}
	if patch.TaskDescription != nil {
		add("task_description", *patch.TaskDescription)
	}
	if patch.ShowTitle != nil {
		add("show_title", *patch.ShowTitle)
	}
	if patch.ShowDescription != nil {
		add("show_description", *patch.ShowDescription)
	}
	if patch.ShowItemCount != nil {
		add("show_item_count", *patch.ShowItemCount)
	}
	if patch.ShowCreatedDate != nil {
		add("show_created_date", *patch.ShowCreatedDate)
	}
	if patch.ShowBlurred != nil {
		add("show_blurred_preview", *patch.ShowBlurred)
	}
	if patch.BlurStrength != nil {
		add("blur_strength", *patch.BlurStrength)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE memory_collections
		SET %s, updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2
	`, strings.Join(sets, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	return nil
}

// SetLock toggles the stored lock flag. Unlocking clears any pending
// schedule so a later re-lock starts from a clean slate.
func (s *PostgresStore) SetLock(ctx context.Context, tenantID, collectionID string, locked bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_collections
		SET is_locked=$3,
			unlock_at = CASE WHEN $3 THEN unlock_at ELSE NULL END,
			updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2
	`, tenantID, collectionID, locked)
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set lock rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ScheduleUnlock(ctx context.Context, tenantID, collectionID string, unlockAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_collections
		SET is_locked=TRUE, unlock_type='scheduled', unlock_at=$3, updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2
	`, tenantID, collectionID, unlockAt)
	if err != nil {
		return false, fmt.Errorf("schedule unlock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule unlock rows: %w", err)
	}
	return affected > 0, nil
}

// CompleteTask unlocks a task-gated collection in a single guarded UPDATE.
// The unlock_type guard keeps a task completion from ever opening a
// schedule-gated collection.
func (s *PostgresStore) CompleteTask(ctx context.Context, tenantID, collectionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_collections
		SET task_completed=TRUE, is_locked=FALSE, unlock_at=NULL, updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2 AND unlock_type='task_based'
	`, tenantID, collectionID)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete task rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListCollectionIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM memory_collections WHERE tenant_id=$1 ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list collection ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan collection id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ItemCounts(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection_id, COUNT(*)::int
		FROM media_items
		WHERE tenant_id=$1 AND collection_id IS NOT NULL
		GROUP BY collection_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("item counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var collectionID string
		var count int
		if err := rows.Scan(&collectionID, &count); err != nil {
			return nil, fmt.Errorf("scan item count: %w", err)
		}
		counts[collectionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) FirstMediaItem(ctx context.Context, tenantID, collectionID string) (*MediaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, collection_id, storage_key, content_type, size_bytes,
			width, height, duration_secs, caption, taken_at, latitude, longitude,
			sort_order, created_by, created_at
		FROM media_items
		WHERE tenant_id=$1 AND collection_id=$2
		ORDER BY sort_order ASC, created_at ASC
		LIMIT 1
	`, tenantID, collectionID)
	item, err := scanMediaItem(row)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanMediaItem(row interface{ Scan(...any) error }) (MediaItem, error) {
	var item MediaItem
	err := row.Scan(
		&item.ID,
		&item.TenantID,
		&item.CollectionID,
		&item.StorageKey,
		&item.ContentType,
		&item.SizeBytes,
		&item.Width,
		&item.Height,
		&item.DurationSecs,
		&item.Caption,
		&item.TakenAt,
		&item.Latitude,
		&item.Longitude,
		&item.SortOrder,
		&item.CreatedBy,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) InsertMediaItem(ctx context.Context, item MediaItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_items (
			id, tenant_id, collection_id, storage_key, content_type, size_bytes,
			width, height, duration_secs, caption, taken_at, latitude, longitude,
			sort_order, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		item.ID, item.TenantID, item.CollectionID, item.StorageKey, item.ContentType, item.SizeBytes,
		item.Width, item.Height, item.DurationSecs, item.Caption, item.TakenAt, item.Latitude, item.Longitude,
		item.SortOrder, item.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert media item: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMediaItems(ctx context.Context, tenantID, collectionID string) ([]MediaItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, collection_id, storage_key, content_type, size_bytes,
			width, height, duration_secs, caption, taken_at, latitude, longitude,
			sort_order, created_by, created_at
		FROM media_items
		WHERE tenant_id=$1 AND collection_id=$2
		ORDER BY sort_order ASC, created_at ASC
	`, tenantID, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	defer rows.Close()

	items := make([]MediaItem, 0)
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMediaItem(ctx context.Context, tenantID, itemID string) (MediaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, collection_id, storage_key, content_type, size_bytes,
			width, height, duration_secs, caption, taken_at, latitude, longitude,
			sort_order, created_by, created_at
		FROM media_items
		WHERE tenant_id=$1 AND id=$2
	`, tenantID, itemID)
	return scanMediaItem(row)
}

func (s *PostgresStore) DeleteMediaItem(ctx context.Context, tenantID, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM media_items WHERE tenant_id=$1 AND id=$2
	`, tenantID, itemID)
	if err != nil {
		return false, fmt.Errorf("delete media item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete media item rows: %w", err)
	}
	return affected > 0, nil
}

// ReorderMediaItems rewrites sort_order to follow the given id list. Items
// of the collection missing from the list keep their relative order after
// the listed ones.
func (s *PostgresStore) ReorderMediaItems(ctx context.Context, tenantID, collectionID string, orderedIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE media_items SET sort_order=$4
			WHERE tenant_id=$1 AND collection_id=$2 AND id=$3
		`, tenantID, collectionID, id, i); err != nil {
			return fmt.Errorf("reorder media item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}
