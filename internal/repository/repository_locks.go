package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tenderprep/internal/models"
)

func (repo *Repository) GetLock(ctx context.Context, prepId string, tx *sql.Tx) (models.EditLock, bool, error) {
	var lock models.EditLock

	query := `
	SELECT
		prep_id, owner_id, acquired_at, last_renewed_at, expires_at
	FROM edit_locks
	WHERE prep_id = $1
	`

	row := repo.q(tx).QueryRowContext(ctx, query, prepId)
	err := row.Scan(&lock.PrepId, &lock.OwnerId, &lock.AcquiredAt, &lock.LastRenewedAt, &lock.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lock, false, nil
	} else if err != nil {
		return lock, false, fmt.Errorf("repository.Repository.GetLock: %w", err)
	}

	return lock, true, nil
}

// UpsertLock writes the lease row for prepId. A renew by the live owner
// keeps acquired_at; any takeover (no row, expired row, or a different
// owner after expiry) starts a fresh acquisition. Contention checks run
// in the service before this call, inside the prep row transaction.
func (repo *Repository) UpsertLock(ctx context.Context, tx *sql.Tx, prepId, ownerId string, lease time.Duration) (models.EditLock, error) {
	var lock models.EditLock
	now := time.Now().UTC()

	query := `
	INSERT INTO edit_locks (prep_id, owner_id, acquired_at, last_renewed_at, expires_at)
	VALUES
		($1, $2, $3, $3, $4)
	ON CONFLICT (prep_id) DO UPDATE SET
		owner_id        = EXCLUDED.owner_id,
		acquired_at     = CASE
			WHEN edit_locks.owner_id = EXCLUDED.owner_id AND edit_locks.expires_at > EXCLUDED.last_renewed_at
			THEN edit_locks.acquired_at
			ELSE EXCLUDED.acquired_at
		END,
		last_renewed_at = EXCLUDED.last_renewed_at,
		expires_at      = EXCLUDED.expires_at
	RETURNING
		prep_id, owner_id, acquired_at, last_renewed_at, expires_at
	`

	row := repo.q(tx).QueryRowContext(ctx, query, prepId, ownerId, now, now.Add(lease))
	err := row.Scan(&lock.PrepId, &lock.OwnerId, &lock.AcquiredAt, &lock.LastRenewedAt, &lock.ExpiresAt)
	if err != nil {
		return lock, fmt.Errorf("repository.Repository.UpsertLock: %w", err)
	}

	return lock, nil
}

// DeleteLockOwned removes the lock only when ownerId holds it. Zero
// rows affected is not an error: redundant release from an unload hook
// must stay silent.
func (repo *Repository) DeleteLockOwned(ctx context.Context, prepId, ownerId string, tx *sql.Tx) error {
	_, err := repo.q(tx).ExecContext(ctx, "DELETE FROM edit_locks WHERE prep_id = $1 AND owner_id = $2", prepId, ownerId)
	if err != nil {
		return fmt.Errorf("repository.Repository.DeleteLockOwned: %w", err)
	}
	return nil
}

func (repo *Repository) DeleteLock(ctx context.Context, tx *sql.Tx, prepId string) error {
	_, err := repo.q(tx).ExecContext(ctx, "DELETE FROM edit_locks WHERE prep_id = $1", prepId)
	if err != nil {
		return fmt.Errorf("repository.Repository.DeleteLock: %w", err)
	}
	return nil
}
