package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/learnhub/internal/data/repos/testutil"
	types "github.com/yungbote/learnhub/internal/domain"
	"gorm.io/gorm"
)

func TestUserTokenRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewUserTokenRepo(db, testutil.Logger(t))
	u := testutil.SeedUser(t, ctx, tx, "usertokenrepo@example.com")

	now := time.Now().UTC()
	makeToken := func(refresh string, refreshExp time.Time) *types.UserToken {
		return &types.UserToken{
			UserID:           u.ID,
			RefreshToken:     refresh,
			AccessExpiresAt:  now.Add(time.Hour),
			RefreshExpiresAt: refreshExp,
		}
	}

	t1 := makeToken("refresh-1", now.Add(24*time.Hour))
	if _, err := repo.Create(ctx, tx, []*types.UserToken{t1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if t1.ID == uuid.Nil {
		t.Fatalf("Create: id not assigned")
	}

	if got, err := repo.GetByID(ctx, tx, t1.ID); err != nil || got.RefreshToken != "refresh-1" {
		t.Fatalf("GetByID: err=%v got=%+v", err, got)
	}
	if got, err := repo.GetByRefreshToken(ctx, tx, "refresh-1"); err != nil || got.ID != t1.ID {
		t.Fatalf("GetByRefreshToken: err=%v got=%+v", err, got)
	}

	ok, err := repo.Rotate(ctx, tx, t1.ID, "refresh-1", "refresh-2", now.Add(2*time.Hour), now.Add(48*time.Hour))
	if err != nil || !ok {
		t.Fatalf("Rotate: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Rotate(ctx, tx, t1.ID, "refresh-1", "refresh-3", now, now)
	if err != nil || ok {
		t.Fatalf("Rotate with stale refresh token should not apply: ok=%v err=%v", ok, err)
	}
	if _, err := repo.GetByRefreshToken(ctx, tx, "refresh-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("old refresh token still resolves: %v", err)
	}

	expired := makeToken("refresh-expired", now.Add(-time.Minute))
	if _, err := repo.Create(ctx, tx, []*types.UserToken{expired}); err != nil {
		t.Fatalf("seed expired: %v", err)
	}
	n, err := repo.DeleteExpired(ctx, tx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}

	if err := repo.DeleteByIDs(ctx, tx, []uuid.UUID{t1.ID}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if _, err := repo.GetByID(ctx, tx, t1.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("after DeleteByIDs: %v", err)
	}

	t4 := makeToken("refresh-4", now.Add(time.Hour))
	if _, err := repo.Create(ctx, tx, []*types.UserToken{t4}); err != nil {
		t.Fatalf("seed t4: %v", err)
	}
	if err := repo.DeleteByUserIDs(ctx, tx, []uuid.UUID{u.ID}); err != nil {
		t.Fatalf("DeleteByUserIDs: %v", err)
	}
	if _, err := repo.GetByID(ctx, tx, t4.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("after DeleteByUserIDs: %v", err)
	}
}
