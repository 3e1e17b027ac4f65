package repository

import (
	"context"
	"testing"

	"tenderprep/internal/models"
)

func TestApprovalSupersession(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	prep := AddTestPrep(t, repo, 2)
	officer := prep.OfficerIds[0]

	live, err := repo.OfficerApprovalLive(ctx, nil, prep.Id, 1, officer)
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Fatal("Fresh prep reports a live approval")
	}

	addApproval(t, repo, prep.Id, 1, officer, models.RoleOfficer, models.DecisionApproved, "")

	live, err = repo.OfficerApprovalLive(ctx, nil, prep.Id, 1, officer)
	if err != nil {
		t.Fatal(err)
	}
	if !live {
		t.Fatal("Approval not reported live")
	}

	addApproval(t, repo, prep.Id, 1, officer, models.RoleOfficer, models.DecisionWithdrawn, "")

	live, err = repo.OfficerApprovalLive(ctx, nil, prep.Id, 1, officer)
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Fatal("Withdrawn approval still reported live")
	}

	// Re-approving creates a new record that goes live again.
	addApproval(t, repo, prep.Id, 1, officer, models.RoleOfficer, models.DecisionApproved, "")

	records, err := repo.LiveOfficerApprovals(ctx, prep.Id, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ParticipantId != officer {
		t.Fatalf("Expected one live approval by '%s', got %v", officer, records)
	}

	history, err := repo.ApprovalHistory(ctx, prep.Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected all 3 records retained in history, got %d", len(history))
	}
	wantDecisions := []models.Decision{models.DecisionApproved, models.DecisionWithdrawn, models.DecisionApproved}
	for i, rec := range history {
		if rec.Decision != wantDecisions[i] {
			t.Errorf("History record %d: expected decision '%s', got '%s'", i, wantDecisions[i], rec.Decision)
		}
	}
}

func TestApprovalRounds(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	prep := AddTestPrep(t, repo, 2)

	addApproval(t, repo, prep.Id, 1, prep.OfficerIds[0], models.RoleOfficer, models.DecisionApproved, "")
	addApproval(t, repo, prep.Id, 1, prep.OfficerIds[1], models.RoleOfficer, models.DecisionApproved, "")
	addApproval(t, repo, prep.Id, 1, prep.ManagerId, models.RoleManager, models.DecisionReturned, "fix quantities")

	// A new round leaves the previous round's records historical.
	records, err := repo.LiveOfficerApprovals(ctx, prep.Id, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("Round 2 sees %d live approvals from round 1", len(records))
	}

	records, err = repo.LiveOfficerApprovals(ctx, prep.Id, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 live approvals in round 1, got %d", len(records))
	}

	// Manager records never show up as officer approvals.
	for _, rec := range records {
		if rec.Role != models.RoleOfficer {
			t.Errorf("Live officer approvals returned a '%s' record", rec.Role)
		}
	}

	history, err := repo.ApprovalHistory(ctx, prep.Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 history records, got %d", len(history))
	}
	last := history[len(history)-1]
	if last.Role != models.RoleManager || last.Decision != models.DecisionReturned || last.Reason != "fix quantities" {
		t.Errorf("Manager return not retained in history: %+v", last)
	}
}

func addApproval(t *testing.T, repo *Repository, prepId string, round int, participantId string, role models.ParticipantRole, decision models.Decision, reason string) models.ApprovalRecord {
	rec, err := repo.AddApproval(context.Background(), nil, models.ApprovalRecord{
		PrepId:        prepId,
		Round:         round,
		ParticipantId: participantId,
		Role:          role,
		Decision:      decision,
		Reason:        reason,
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec
}
