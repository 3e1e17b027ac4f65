package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tenderprep/internal/models"

	"github.com/google/uuid"
)

func (repo *Repository) AddApproval(ctx context.Context, tx *sql.Tx, rec models.ApprovalRecord) (models.ApprovalRecord, error) {
	if len(rec.Id) == 0 {
		rec.Id = uuid.NewString()
	}

	query := `
	INSERT INTO approvals (id, prep_id, round, participant_id, role, decision, reason, decided_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, DEFAULT)
	RETURNING decided_at
	`

	row := repo.q(tx).QueryRowContext(ctx, query, rec.Id, rec.PrepId, rec.Round, rec.ParticipantId, rec.Role, rec.Decision, rec.Reason)
	err := row.Scan(&rec.DecidedAt)
	if err != nil {
		return rec, fmt.Errorf("repository.Repository.AddApproval: %w", err)
	}

	return rec, nil
}

// LiveOfficerApprovals returns, for the given round, every officer
// whose latest record is an approval. The latest-per-participant
// subquery is what makes a Withdrawn record supersede an Approved one.
func (repo *Repository) LiveOfficerApprovals(ctx context.Context, prepId string, round int, tx *sql.Tx) ([]models.ApprovalRecord, error) {
	query := `
	SELECT id, prep_id, round, participant_id, role, decision, reason, decided_at
	FROM (
		SELECT DISTINCT ON (participant_id)
			id, prep_id, round, participant_id, role, decision, reason, decided_at
		FROM approvals
		WHERE prep_id = $1 AND round = $2 AND role = $3
		ORDER BY participant_id, seq DESC
	) latest
	WHERE decision = $4
	`

	rows, err := repo.q(tx).QueryContext(ctx, query, prepId, round, models.RoleOfficer, models.DecisionApproved)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.LiveOfficerApprovals: %w", err)
	}
	defer rows.Close()

	var result []models.ApprovalRecord
	for rows.Next() {
		var rec models.ApprovalRecord
		err = rows.Scan(&rec.Id, &rec.PrepId, &rec.Round, &rec.ParticipantId, &rec.Role, &rec.Decision, &rec.Reason, &rec.DecidedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.LiveOfficerApprovals: rows scan failed: %w", err)
		}
		result = append(result, rec)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.LiveOfficerApprovals: %w", rows.Err())
	}

	return result, nil
}

// OfficerApprovalLive reports whether officerId's latest record in the
// round is an approval.
func (repo *Repository) OfficerApprovalLive(ctx context.Context, tx *sql.Tx, prepId string, round int, officerId string) (bool, error) {
	query := `
	SELECT decision
	FROM approvals
	WHERE prep_id = $1 AND round = $2 AND role = $3 AND participant_id = $4
	ORDER BY seq DESC
	LIMIT 1
	`

	var decision models.Decision
	row := repo.q(tx).QueryRowContext(ctx, query, prepId, round, models.RoleOfficer, officerId)
	err := row.Scan(&decision)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("repository.Repository.OfficerApprovalLive: %w", err)
	}

	return decision == models.DecisionApproved, nil
}

// ApprovalHistory returns every record ever written for the prep, all
// rounds included, oldest first.
func (repo *Repository) ApprovalHistory(ctx context.Context, prepId string, tx *sql.Tx) ([]models.ApprovalRecord, error) {
	query := `
	SELECT id, prep_id, round, participant_id, role, decision, reason, decided_at
	FROM approvals
	WHERE prep_id = $1
	ORDER BY seq
	`

	rows, err := repo.q(tx).QueryContext(ctx, query, prepId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.ApprovalHistory: %w", err)
	}
	defer rows.Close()

	var result []models.ApprovalRecord
	for rows.Next() {
		var rec models.ApprovalRecord
		err = rows.Scan(&rec.Id, &rec.PrepId, &rec.Round, &rec.ParticipantId, &rec.Role, &rec.Decision, &rec.Reason, &rec.DecidedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.ApprovalHistory: rows scan failed: %w", err)
		}
		result = append(result, rec)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.ApprovalHistory: %w", rows.Err())
	}

	return result, nil
}
