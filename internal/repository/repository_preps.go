package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tenderprep/internal/models"

	"github.com/google/uuid"
)

func (repo *Repository) AddPrep(ctx context.Context, prep models.TenderPrep) (models.TenderPrep, error) {
	if len(prep.Id) == 0 {
		prep.Id = uuid.NewString()
	}

	query := `
	INSERT INTO tender_preps (id, status, round, manager_id, name, description, created_at, updated_at)
	VALUES
		($1, $2, 1, $3, $4, $5, DEFAULT, DEFAULT)
	RETURNING
		status, round, signoff_comment, created_at, updated_at
	`

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return prep, fmt.Errorf("repository.Repository.AddPrep: failed to start transaction: %w", err)
	}

	row := tx.QueryRowContext(ctx, query, prep.Id, models.PrepDrafting, prep.ManagerId, prep.Name, prep.Description)
	err = row.Scan(&prep.Status, &prep.Round, &prep.SignoffComment, &prep.CreatedAt, &prep.UpdatedAt)
	if err != nil {
		return prep, fmt.Errorf("repository.Repository.AddPrep: scan failed: %w", wrapRollbackErr(tx, err))
	}

	for _, officerId := range prep.OfficerIds {
		_, err = tx.ExecContext(ctx, "INSERT INTO prep_officers (prep_id, officer_id) VALUES ($1, $2)", prep.Id, officerId)
		if err != nil {
			return prep, fmt.Errorf("repository.Repository.AddPrep: %w", wrapRollbackErr(tx, err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return prep, fmt.Errorf("repository.Repository.AddPrep: failed to commit transaction: %w", err)
	}

	return prep, nil
}

func (repo *Repository) GetPrepByUUID(ctx context.Context, prepId string, tx *sql.Tx) (models.TenderPrep, error) {
	return repo.getPrep(ctx, prepId, tx, false)
}

// GetPrepForUpdate loads a prep with its row locked for the lifetime of
// tx. Every mutating workflow operation goes through here so that
// "check ledger, then transition status" is one atomic unit.
func (repo *Repository) GetPrepForUpdate(ctx context.Context, tx *sql.Tx, prepId string) (models.TenderPrep, error) {
	return repo.getPrep(ctx, prepId, tx, true)
}

func (repo *Repository) getPrep(ctx context.Context, prepId string, tx *sql.Tx, forUpdate bool) (models.TenderPrep, error) {
	var prep models.TenderPrep

	query := `
	SELECT
		id, status, round, manager_id, name, description, signoff_comment, created_at, updated_at
	FROM tender_preps
	WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	row := repo.q(tx).QueryRowContext(ctx, query, prepId)
	err := row.Scan(&prep.Id, &prep.Status, &prep.Round, &prep.ManagerId, &prep.Name, &prep.Description, &prep.SignoffComment, &prep.CreatedAt, &prep.UpdatedAt)
	if err == sql.ErrNoRows {
		return prep, err
	} else if err != nil {
		return prep, fmt.Errorf("repository.Repository.getPrep: %w", err)
	}

	rows, err := repo.q(tx).QueryContext(ctx, "SELECT officer_id FROM prep_officers WHERE prep_id = $1 ORDER BY officer_id", prepId)
	if err != nil {
		return prep, fmt.Errorf("repository.Repository.getPrep: %w", err)
	}
	defer rows.Close()

	var officerId string
	for rows.Next() {
		err = rows.Scan(&officerId)
		if err != nil {
			return prep, fmt.Errorf("repository.Repository.getPrep: rows scan failed: %w", err)
		}
		prep.OfficerIds = append(prep.OfficerIds, officerId)
	}
	if rows.Err() != nil {
		return prep, fmt.Errorf("repository.Repository.getPrep: %w", rows.Err())
	}

	return prep, nil
}

func (repo *Repository) UpdatePrepStatus(ctx context.Context, tx *sql.Tx, prepId string, status models.PrepStatus, round int) error {
	query := `
	UPDATE tender_preps
	SET status = $2, round = $3, updated_at = CURRENT_TIMESTAMP
	WHERE id = $1
	`

	_, err := repo.q(tx).ExecContext(ctx, query, prepId, status, round)
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdatePrepStatus: %w", err)
	}
	return nil
}

func (repo *Repository) UpdatePrepContent(ctx context.Context, tx *sql.Tx, prepId, name, description string) error {
	query := `
	UPDATE tender_preps
	SET name = $2, description = $3, updated_at = CURRENT_TIMESTAMP
	WHERE id = $1
	`

	_, err := repo.q(tx).ExecContext(ctx, query, prepId, name, description)
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdatePrepContent: %w", err)
	}
	return nil
}

func (repo *Repository) UpdateSignoffComment(ctx context.Context, tx *sql.Tx, prepId, comment string) error {
	query := `
	UPDATE tender_preps
	SET signoff_comment = $2, updated_at = CURRENT_TIMESTAMP
	WHERE id = $1
	`

	_, err := repo.q(tx).ExecContext(ctx, query, prepId, comment)
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdateSignoffComment: %w", err)
	}
	return nil
}
