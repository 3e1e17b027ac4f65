package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	prep := AddTestPrep(t, repo, 2)
	owner := prep.OfficerIds[0]

	_, ok, err := repo.GetLock(ctx, prep.Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Expected no lock on a fresh prep")
	}

	lock, err := repo.UpsertLock(ctx, nil, prep.Id, owner, time.Minute*2)
	if err != nil {
		t.Fatal(err)
	}
	if lock.OwnerId != owner {
		t.Errorf("Expected lock owner '%s', got '%s'", owner, lock.OwnerId)
	}
	if !lock.Live(time.Now().UTC()) {
		t.Error("Fresh lock should be live")
	}

	// Renew by the same owner keeps the original acquisition time and
	// pushes the expiry forward.
	time.Sleep(time.Millisecond * 50)
	renewed, err := repo.UpsertLock(ctx, nil, prep.Id, owner, time.Minute*2)
	if err != nil {
		t.Fatal(err)
	}
	if !renewed.AcquiredAt.Equal(lock.AcquiredAt) {
		t.Errorf("Renew changed acquired_at: %s -> %s", lock.AcquiredAt, renewed.AcquiredAt)
	}
	if renewed.ExpiresAt.Before(lock.ExpiresAt) {
		t.Error("Renew did not extend the lease")
	}

	// Release by a non-owner must leave the lock in place.
	err = repo.DeleteLockOwned(ctx, prep.Id, uuid.NewString(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err = repo.GetLock(ctx, prep.Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Non-owner release removed the lock")
	}

	err = repo.DeleteLockOwned(ctx, prep.Id, owner, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err = repo.GetLock(ctx, prep.Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Owner release left the lock behind")
	}

	// Redundant release is a silent no-op.
	err = repo.DeleteLockOwned(ctx, prep.Id, owner, nil)
	if err != nil {
		t.Fatal(err)
	}
}

func TestLockExpiryTakeover(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	prep := AddTestPrep(t, repo, 2)
	first, second := prep.OfficerIds[0], prep.OfficerIds[1]

	lock, err := repo.UpsertLock(ctx, nil, prep.Id, first, time.Minute*2)
	if err != nil {
		t.Fatal(err)
	}

	// Age the lease past its expiry directly; expiry is lazy, so the
	// row stays until the next writer claims it.
	_, err = repo.TestGetDB().Exec("UPDATE edit_locks SET expires_at = $2 WHERE prep_id = $1", prep.Id, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	expired, ok, err := repo.GetLock(ctx, prep.Id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Expired lock row should still exist until taken over")
	}
	if expired.Live(time.Now().UTC()) {
		t.Fatal("Lock aged into the past reports live")
	}

	taken, err := repo.UpsertLock(ctx, nil, prep.Id, second, time.Minute*2)
	if err != nil {
		t.Fatal(err)
	}
	if taken.OwnerId != second {
		t.Errorf("Expected takeover by '%s', got owner '%s'", second, taken.OwnerId)
	}
	if taken.AcquiredAt.Equal(lock.AcquiredAt) {
		t.Error("Takeover kept the previous owner's acquired_at")
	}
	if !taken.Live(time.Now().UTC()) {
		t.Error("Taken-over lock should be live")
	}
}
