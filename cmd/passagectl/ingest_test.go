package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "valid pairs",
			pairs: []string{"team=search", "env=prod"},
			want:  map[string]string{"team": "search", "env": "prod"},
		},
		{
			name:  "value with equals sign",
			pairs: []string{"query=a=b"},
			want:  map[string]string{"query": "a=b"},
		},
		{
			name: "empty input",
			want: nil,
		},
		{
			name:    "missing separator",
			pairs:   []string{"team"},
			wantErr: true,
		},
		{
			name:    "empty key",
			pairs:   []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMetadata(tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(got))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("expected %s=%q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestIngestibleFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"notes.md", true},
		{"notes.txt", true},
		{"notes.markdown", true},
		{"NOTES.MD", true},
		{"report.pdf", false},
		{"main.go", false},
		{"README", false},
	}

	for _, tt := range tests {
		if got := ingestibleFile(tt.path); got != tt.want {
			t.Errorf("ingestibleFile(%q) = %v, expected %v", tt.path, got, tt.want)
		}
	}
}

func TestCollectDocuments_Walk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "alpha.md"), "alpha content")
	writeFile(t, filepath.Join(dir, "beta.txt"), "beta content")
	writeFile(t, filepath.Join(dir, "skip.pdf"), "binary")
	writeFile(t, filepath.Join(dir, "nested", "gamma.markdown"), "gamma content")

	docs, err := collectDocuments([]string{dir}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}

	titles := make(map[string]bool)
	for _, doc := range docs {
		titles[doc.Title] = true
	}
	for _, want := range []string{"alpha", "beta", "gamma"} {
		if !titles[want] {
			t.Errorf("expected document titled %q", want)
		}
	}
}

func TestCollectDocuments_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	writeFile(t, path, "explicitly named files are taken as-is")

	docs, err := collectDocuments([]string{path}, "Quarterly Report")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Title != "Quarterly Report" {
		t.Errorf("expected explicit title, got %q", docs[0].Title)
	}
	if docs[0].Source != path {
		t.Errorf("expected source %q, got %q", path, docs[0].Source)
	}
}

func TestCollectDocuments_NothingFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "image.png"), "not text")

	if _, err := collectDocuments([]string{dir}, ""); err == nil {
		t.Error("expected error for directory without ingestible files")
	}
}

func TestCollectDocuments_MissingPath(t *testing.T) {
	if _, err := collectDocuments([]string{"/does/not/exist"}, ""); err == nil {
		t.Error("expected error for missing path")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
