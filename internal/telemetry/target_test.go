package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/target/memory"
	"github.com/steveyegge/rmimport/internal/types"
)

func TestWrapTargetDisabled(t *testing.T) {
	t.Setenv("RMIMPORT_OTEL_ENABLED", "")
	store := memory.New(types.DefaultSchema())
	if got := WrapTarget(store); got != target.Target(store) {
		t.Errorf("WrapTarget() = %T, want the store unchanged", got)
	}
}

func TestInstrumentedTargetPassesThrough(t *testing.T) {
	ctx := context.Background()
	if err := Init(ctx, "rmimport-test", "dev"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = Shutdown(ctx) }()

	store := memory.New(types.DefaultSchema())
	store.AddIssue(3, 12, "existing")
	wrapped := newInstrumentedTarget(store)

	highest, err := wrapped.MaxIssueNumber(ctx, 3)
	if err != nil || highest != 12 {
		t.Fatalf("MaxIssueNumber() = %d, %v; want 12, nil", highest, err)
	}
	exists, err := wrapped.IssueExists(ctx, 3, 12)
	if err != nil || !exists {
		t.Fatalf("IssueExists() = %v, %v; want true, nil", exists, err)
	}
	schema, err := wrapped.IssueSchema(ctx)
	if err != nil || schema.InitialState != "Open" {
		t.Fatalf("IssueSchema() = %+v, %v", schema, err)
	}

	issue := types.NewIssue("u1", 3, types.UnknownUser, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	issue.Number = 13
	issue.Title = "imported"
	if err := wrapped.Commit(ctx, &target.Batch{ProjectID: 3, Issues: []*types.Issue{issue}}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if store.Commits() != 1 {
		t.Errorf("Commits() = %d, want 1", store.Commits())
	}
}

func TestInstrumentedTargetReturnsCommitError(t *testing.T) {
	ctx := context.Background()
	store := memory.New(types.DefaultSchema())
	store.CommitErr = errors.New("disk full")
	wrapped := newInstrumentedTarget(store)

	err := wrapped.Commit(ctx, &target.Batch{ProjectID: 1})
	if !errors.Is(err, store.CommitErr) {
		t.Errorf("Commit() error = %v, want %v", err, store.CommitErr)
	}
}
