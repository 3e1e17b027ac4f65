package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tenderprep/internal/models"
)

func (repo *Repository) GetSignoffs(ctx context.Context, prepId string, tx *sql.Tx) ([]models.SignoffRecord, error) {
	query := `
	SELECT prep_id, participant_id, role, signature_blob, signature_kind, signed_at
	FROM signoffs
	WHERE prep_id = $1
	ORDER BY participant_id
	`

	rows, err := repo.q(tx).QueryContext(ctx, query, prepId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetSignoffs: %w", err)
	}
	defer rows.Close()

	var result []models.SignoffRecord
	for rows.Next() {
		var rec models.SignoffRecord
		var kind sql.NullString
		err = rows.Scan(&rec.PrepId, &rec.ParticipantId, &rec.Role, &rec.SignatureBlob, &kind, &rec.SignedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetSignoffs: rows scan failed: %w", err)
		}
		if kind.Valid {
			rec.SignatureKind = models.SignatureKind(kind.String)
		}
		result = append(result, rec)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.GetSignoffs: %w", rows.Err())
	}

	return result, nil
}

func (repo *Repository) GetSignoff(ctx context.Context, tx *sql.Tx, prepId, participantId string) (models.SignoffRecord, bool, error) {
	var rec models.SignoffRecord
	var kind sql.NullString

	query := `
	SELECT prep_id, participant_id, role, signature_blob, signature_kind, signed_at
	FROM signoffs
	WHERE prep_id = $1 AND participant_id = $2
	`

	row := repo.q(tx).QueryRowContext(ctx, query, prepId, participantId)
	err := row.Scan(&rec.PrepId, &rec.ParticipantId, &rec.Role, &rec.SignatureBlob, &kind, &rec.SignedAt)
	if err == sql.ErrNoRows {
		return rec, false, nil
	} else if err != nil {
		return rec, false, fmt.Errorf("repository.Repository.GetSignoff: %w", err)
	}

	if kind.Valid {
		rec.SignatureKind = models.SignatureKind(kind.String)
	}
	return rec, true, nil
}

// UpsertSignoff records a signature, overwriting any previous one for
// the participant. The row is created lazily on the first sign.
func (repo *Repository) UpsertSignoff(ctx context.Context, tx *sql.Tx, prepId, participantId string, role models.ParticipantRole, blob []byte, kind models.SignatureKind) (models.SignoffRecord, error) {
	rec := models.SignoffRecord{
		PrepId:        prepId,
		ParticipantId: participantId,
		Role:          role,
		SignatureBlob: blob,
		SignatureKind: kind,
	}

	query := `
	INSERT INTO signoffs (prep_id, participant_id, role, signature_blob, signature_kind, signed_at)
	VALUES
		($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
	ON CONFLICT (prep_id, participant_id) DO UPDATE SET
		signature_blob = EXCLUDED.signature_blob,
		signature_kind = EXCLUDED.signature_kind,
		signed_at      = EXCLUDED.signed_at
	RETURNING signed_at
	`

	row := repo.q(tx).QueryRowContext(ctx, query, prepId, participantId, role, blob, kind)
	err := row.Scan(&rec.SignedAt)
	if err != nil {
		return rec, fmt.Errorf("repository.Repository.UpsertSignoff: %w", err)
	}

	return rec, nil
}

// ClearSignoff blanks a participant's signature, keeping the row.
// Clearing an absent or already clear signoff is a silent no-op.
func (repo *Repository) ClearSignoff(ctx context.Context, tx *sql.Tx, prepId, participantId string) error {
	query := `
	UPDATE signoffs
	SET signature_blob = NULL, signature_kind = NULL, signed_at = NULL
	WHERE prep_id = $1 AND participant_id = $2
	`

	_, err := repo.q(tx).ExecContext(ctx, query, prepId, participantId)
	if err != nil {
		return fmt.Errorf("repository.Repository.ClearSignoff: %w", err)
	}
	return nil
}

// AnyOfficerSigned reports whether at least one officer signature is
// currently recorded. The signoff comment freezes once this is true.
func (repo *Repository) AnyOfficerSigned(ctx context.Context, tx *sql.Tx, prepId string) (bool, error) {
	query := `
	SELECT 1
	FROM signoffs
	WHERE prep_id = $1 AND role = $2 AND signed_at IS NOT NULL
	LIMIT 1
	`

	var dummy int
	row := repo.q(tx).QueryRowContext(ctx, query, prepId, models.RoleOfficer)
	err := row.Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("repository.Repository.AnyOfficerSigned: %w", err)
	}

	return true, nil
}
