package trust

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/core-nexus/utopian/internal/storage"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestSeed(t *testing.T) {
	kn := Seed(fixedNow)
	if len(kn.Nodes) != 1 {
		t.Fatalf("Seed() nodes = %d, want 1", len(kn.Nodes))
	}
	n := kn.Nodes[0]
	if n.URL != CoreRepository || n.Type != NodeTypeCore || n.Score == nil || *n.Score != 1.0 {
		t.Errorf("Seed() node = %+v", n)
	}
	if kn.LastUpdated != "2026-03-14T09:30:00Z" {
		t.Errorf("LastUpdated = %q", kn.LastUpdated)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := storage.NewStore(t.TempDir())

	_, ok, err := Load(store)
	if err != nil || ok {
		t.Fatalf("Load() on empty node = ok %v, err %v", ok, err)
	}

	nodes := []Node{
		{URL: CoreRepository, Score: Score(1.0), Type: NodeTypeCore, Description: "core"},
		{URL: "https://example.org/peer", Score: Score(0.4), Type: NodeTypePeer},
		{URL: "https://example.org/plain"},
	}
	if _, err := Save(store, nodes, fixedNow); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := Load(store)
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	want := KnownNodes{Nodes: nodes, LastUpdated: "2026-03-14T09:30:00Z"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	existing := []Node{
		{URL: "a", Score: Score(0.5), Description: "first"},
		{URL: "b", Type: NodeTypePeer},
	}
	add := []Node{
		{URL: "c"},
		{URL: "a", Score: Score(0.9)},
		{URL: ""},
		{URL: "b", Description: "second"},
		{URL: "c", Type: NodeTypeResource},
	}

	got := Merge(existing, add)
	want := []Node{
		{URL: "a", Score: Score(0.9), Description: "first"},
		{URL: "b", Type: NodeTypePeer, Description: "second"},
		{URL: "c", Type: NodeTypeResource},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	if *existing[0].Score != 0.5 {
		t.Error("Merge() mutated its input")
	}
}

func TestValidate(t *testing.T) {
	errs := Validate([]Node{
		{URL: "ok", Score: Score(0)},
		{URL: "high", Score: Score(1.5)},
		{URL: "", Score: Score(-0.1)},
	})
	if len(errs) != 3 {
		t.Fatalf("Validate() = %v, want 3 errors", errs)
	}
	if errs[0].URL != "high" || errs[0].Field != "score" {
		t.Errorf("errs[0] = %+v", errs[0])
	}
	if errs[1].Field != "url" || errs[2].Field != "score" {
		t.Errorf("errs = %+v", errs)
	}
}

func TestAdd(t *testing.T) {
	store := storage.NewStore(t.TempDir())
	if _, err := Save(store, Seed(fixedNow).Nodes, fixedNow); err != nil {
		t.Fatal(err)
	}

	later := fixedNow.Add(time.Hour)
	merged, err := Add(store, []Node{
		{URL: CoreRepository, Description: "updated"},
		{URL: "https://example.org/peer", Score: Score(0.3)},
	}, later)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(merged) != 2 || merged[0].Description != "updated" {
		t.Errorf("Add() merged = %+v", merged)
	}

	kn, _, err := Load(store)
	if err != nil {
		t.Fatal(err)
	}
	if kn.LastUpdated != "2026-03-14T10:30:00Z" || len(kn.Nodes) != 2 {
		t.Errorf("stored = %+v", kn)
	}

	_, err = Add(store, []Node{{URL: "bad", Score: Score(2)}}, later)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "score" {
		t.Errorf("Add() invalid score error = %v", err)
	}
}
