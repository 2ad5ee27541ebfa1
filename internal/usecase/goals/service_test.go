package goals

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/domain"
)

func TestGoalLifecycle(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil, store, zerolog.Nop())
	ctx := context.Background()

	goal, err := svc.Create(ctx, "u1", CreateInput{Title: "  每天跑步  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if goal.Title != "每天跑步" || goal.Status != domain.GoalStatusActive || goal.Progress != 0 {
		t.Fatalf("неожиданная цель: %+v", goal)
	}

	for i := 0; i < 12; i++ {
		_, progress, err := svc.Checkin(ctx, "u1", goal.ID, "ok")
		if err != nil {
			t.Fatalf("checkin: %v", err)
		}
		if want := min((i+1)*10, 100); progress != want {
			t.Fatalf("отметка %d: ожидали %d, получили %d", i+1, want, progress)
		}
	}
	checkins, _ := svc.ListCheckins(ctx, "u1", goal.ID)
	if len(checkins) != 12 {
		t.Fatalf("ожидали 12 отметок, получили %d", len(checkins))
	}

	done := domain.GoalStatusCompleted
	updated, err := svc.Update(ctx, "u1", goal.ID, Patch{Status: &done})
	if err != nil || updated.Status != done || updated.Progress != 100 {
		t.Fatalf("update: %+v %v", updated, err)
	}
	active, _ := svc.List(ctx, "u1", domain.GoalStatusActive)
	if len(active) != 0 {
		t.Fatalf("завершённая цель не активна")
	}
	if err := svc.Delete(ctx, "u1", goal.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestGoalOwnershipAndValidation(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil, nil, zerolog.Nop())
	ctx := context.Background()
	goal, _ := svc.Create(ctx, "u1", CreateInput{Title: "读书"})

	if _, err := svc.Get(ctx, "u2", goal.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужая цель должна быть NotFound: %v", err)
	}
	if _, _, err := svc.Checkin(ctx, "u2", goal.ID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужая отметка должна быть NotFound: %v", err)
	}
	if err := svc.Delete(ctx, "u2", goal.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужое удаление должно быть NotFound: %v", err)
	}

	badStatus := domain.GoalStatus("PAUSED")
	badProgress := 101
	_, errEmpty := svc.Create(ctx, "u1", CreateInput{Title: " "})
	_, errLong := svc.Create(ctx, "u1", CreateInput{Title: strings.Repeat("字", 101)})
	_, errStatus := svc.Update(ctx, "u1", goal.ID, Patch{Status: &badStatus})
	_, errProgress := svc.Update(ctx, "u1", goal.ID, Patch{Progress: &badProgress})
	_, errFilter := svc.List(ctx, "u1", "DONE")

	invalid := map[string]error{
		"пустой":   errEmpty,
		"длинный":  errLong,
		"статус":   errStatus,
		"прогресс": errProgress,
		"фильтр":   errFilter,
	}
	for name, err := range invalid {
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: ожидали ErrInvalidInput, получили %v", name, err)
		}
	}
}
