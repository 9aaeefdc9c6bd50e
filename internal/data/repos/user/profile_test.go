package user

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/learnhub/internal/data/repos/testutil"
	types "github.com/yungbote/learnhub/internal/domain"
	"gorm.io/gorm"
)

func TestUserProfileRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewUserProfileRepo(db, testutil.Logger(t))
	u := testutil.SeedUser(t, ctx, tx, "profile@example.com")

	if _, err := repo.GetByUserID(ctx, tx, u.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByUserID before upsert: want ErrRecordNotFound got %v", err)
	}

	p, err := repo.Upsert(ctx, tx, &types.UserProfile{UserID: u.ID, FullName: "Ada"})
	if err != nil {
		t.Fatalf("Upsert (insert): %v", err)
	}
	if p.FullName != "Ada" {
		t.Fatalf("Upsert: want=Ada got=%s", p.FullName)
	}

	p, err = repo.Upsert(ctx, tx, &types.UserProfile{UserID: u.ID, FullName: "Ada Lovelace", Bio: "math"})
	if err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}
	if p.FullName != "Ada Lovelace" || p.Bio != "math" {
		t.Fatalf("Upsert: unexpected profile %+v", p)
	}

	rows, err := repo.GetByUserIDs(ctx, tx, []uuid.UUID{u.ID, uuid.New()})
	if err != nil || len(rows) != 1 {
		t.Fatalf("GetByUserIDs: err=%v len=%d", err, len(rows))
	}
}
