package main

import (
	"bytes"
	"strings"
	"testing"

	models "archive/internal/domain/models/archive"

	"github.com/google/uuid"
)

func TestPrintTree(t *testing.T) {
	docID := int64(3)
	view := &models.TreeView{
		Title:           "Physics",
		DocumentID:      &docID,
		Kind:            models.KindCollection,
		RenderedVersion: "1.2",
		Children: []*models.TreeView{
			{Title: "Intro", Kind: models.KindModule, RenderedVersion: "4"},
			{Title: "Coming soon"},
		},
	}

	var buf bytes.Buffer
	printTree(&buf, view, 0)

	want := "Physics [Collection 1.2]\n  Intro [Module 4]\n  Coming soon\n"
	if buf.String() != want {
		t.Errorf("printTree output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrintPointers(t *testing.T) {
	identity := uuid.New()
	var buf bytes.Buffer
	err := printPointers(&buf, []*models.LatestPointer{{
		Identity:   identity,
		DocumentID: 9,
		Version:    models.Version{Major: 2, Minor: 1},
		Kind:       models.KindCollection,
		State:      models.StateCurrent,
		Title:      "Book",
	}})
	if err != nil {
		t.Fatalf("printPointers: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	for _, field := range []string{identity.String(), "9", "2.1", "Collection", "Current", "Book"} {
		if !strings.Contains(lines[1], field) {
			t.Errorf("row %q missing %q", lines[1], field)
		}
	}
}

func TestParseIdentities(t *testing.T) {
	id := uuid.New()
	got, err := parseIdentities([]string{" " + id.String() + " "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != id {
		t.Errorf("got %v, want [%s]", got, id)
	}

	if _, err := parseIdentities([]string{"not-a-uuid"}); err == nil {
		t.Error("expected error for invalid identity")
	}
}

func TestParseDocumentRef(t *testing.T) {
	id := uuid.New()

	ref, err := parseDocumentRef("42")
	if err != nil || ref.id != 42 {
		t.Fatalf("parseDocumentRef(42) = %+v, %v", ref, err)
	}

	ref, err = parseDocumentRef(id.String() + "@3.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.id != 0 || ref.identity != id || ref.version != (models.Version{Major: 3, Minor: 2}) {
		t.Errorf("got %+v", ref)
	}

	for _, bad := range []string{"0", "-1", "abc", id.String(), "nope@1", id.String() + "@1.0"} {
		if _, err := parseDocumentRef(bad); err == nil {
			t.Errorf("parseDocumentRef(%q): expected error", bad)
		}
	}
}
