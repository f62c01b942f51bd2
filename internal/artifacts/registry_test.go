package artifacts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/certiflow/certiflow/internal/template"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(context.Background(), filepath.Join(t.TempDir(), "artifacts.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func sampleArtifact(id string, createdAt time.Time) template.Artifact {
	return template.Artifact{
		ID:        id,
		Template:  "certificate",
		Path:      "/out/" + id + ".xlsx",
		Checksum:  "abc123",
		CreatedAt: createdAt,
	}
}

func TestRegistryRecordAndGet(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	want := sampleArtifact("a1", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	if err := reg.Record(ctx, want); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := reg.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != want.ID || got.Template != want.Template || got.Checksum != want.Checksum || got.Path != want.Path {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestRegistryGetMissing(t *testing.T) {
	reg := openTestRegistry(t)
	if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestRegistryDuplicateIDRejected(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()
	a := sampleArtifact("dup", time.Now().UTC())
	if err := reg.Record(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Record(ctx, a); err == nil {
		t.Error("recording the same id twice should fail")
	}
}

func TestRegistryDelete(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	if err := reg.Record(ctx, sampleArtifact("a1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := reg.Get(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := reg.Delete(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Delete = %v, want ErrNotFound", err)
	}
}

func TestRegistryListNewestFirst(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		a := sampleArtifact(id, base.Add(time.Duration(i)*time.Hour))
		if err := reg.Record(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].ID != "new" || list[2].ID != "old" {
		t.Errorf("order = [%s %s %s], want newest first", list[0].ID, list[1].ID, list[2].ID)
	}
}
