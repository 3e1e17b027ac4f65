package repository

import (
	"bytes"
	"context"
	"testing"

	"tenderprep/internal/models"
)

func TestSignoffUpsertClear(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	prep := AddTestPrep(t, repo, 2)
	officer := prep.OfficerIds[0]

	_, ok, err := repo.GetSignoff(ctx, nil, prep.Id, officer)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Signoff row exists before first sign")
	}

	rec, err := repo.UpsertSignoff(ctx, nil, prep.Id, officer, models.RoleOfficer, []byte("blob-1"), models.SignatureDrawn)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Signed() {
		t.Fatal("Fresh signature not reported signed")
	}

	// Signing again overwrites the previous signature.
	rec, err = repo.UpsertSignoff(ctx, nil, prep.Id, officer, models.RoleOfficer, []byte("blob-2"), models.SignatureTyped)
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := repo.GetSignoff(ctx, nil, prep.Id, officer)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Signoff row missing after sign")
	}
	if !bytes.Equal(got.SignatureBlob, []byte("blob-2")) || got.SignatureKind != models.SignatureTyped {
		t.Errorf("Overwrite lost: got blob '%s' kind '%s'", got.SignatureBlob, got.SignatureKind)
	}

	// Un-sign clears the signature but keeps the row.
	err = repo.ClearSignoff(ctx, nil, prep.Id, officer)
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err = repo.GetSignoff(ctx, nil, prep.Id, officer)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Clear removed the signoff row")
	}
	if got.Signed() || got.SignedAt != nil || len(got.SignatureBlob) > 0 {
		t.Errorf("Clear left signature state behind: %+v", got)
	}

	// Clearing an absent participant is a silent no-op.
	err = repo.ClearSignoff(ctx, nil, prep.Id, prep.OfficerIds[1])
	if err != nil {
		t.Fatal(err)
	}
}

func TestAnyOfficerSigned(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	prep := AddTestPrep(t, repo, 2)

	signed, err := repo.AnyOfficerSigned(ctx, nil, prep.Id)
	if err != nil {
		t.Fatal(err)
	}
	if signed {
		t.Fatal("Fresh prep reports an officer signature")
	}

	// A manager signature alone does not count.
	_, err = repo.UpsertSignoff(ctx, nil, prep.Id, prep.ManagerId, models.RoleManager, []byte("mgr"), models.SignatureTyped)
	if err != nil {
		t.Fatal(err)
	}
	signed, err = repo.AnyOfficerSigned(ctx, nil, prep.Id)
	if err != nil {
		t.Fatal(err)
	}
	if signed {
		t.Fatal("Manager signature counted as officer signature")
	}

	_, err = repo.UpsertSignoff(ctx, nil, prep.Id, prep.OfficerIds[0], models.RoleOfficer, []byte("off"), models.SignatureDrawn)
	if err != nil {
		t.Fatal(err)
	}
	signed, err = repo.AnyOfficerSigned(ctx, nil, prep.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !signed {
		t.Fatal("Officer signature not reported")
	}

	// A cleared signature stops counting.
	err = repo.ClearSignoff(ctx, nil, prep.Id, prep.OfficerIds[0])
	if err != nil {
		t.Fatal(err)
	}
	signed, err = repo.AnyOfficerSigned(ctx, nil, prep.Id)
	if err != nil {
		t.Fatal(err)
	}
	if signed {
		t.Fatal("Cleared signature still reported")
	}
}
