package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HH_ASSISTANT_TEST_SECRET", " from-env ")

	tests := []struct {
		name    string
		src     Source
		want    string
		wantErr string
	}{
		{name: "file wins", src: Source{File: tokenFile, Env: "HH_ASSISTANT_TEST_SECRET", Value: "inline"}, want: "from-file"},
		{name: "env before value", src: Source{Env: "HH_ASSISTANT_TEST_SECRET", Value: "inline"}, want: "from-env"},
		{name: "inline value", src: Source{Value: " inline "}, want: "inline"},
		{name: "empty file", src: Source{Name: "token", File: emptyFile}, wantErr: "is empty"},
		{name: "missing file", src: Source{Name: "token", File: filepath.Join(dir, "missing")}, wantErr: "reading token"},
		{name: "unset env", src: Source{Name: "token", Env: "HH_ASSISTANT_UNSET"}, wantErr: "set HH_ASSISTANT_UNSET"},
		{name: "nothing", src: Source{}, wantErr: "secret is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "smtp password", Env: "HH_ASSISTANT_UNSET"})
	if err != nil || got != "" {
		t.Fatalf("expected empty result, got %q %v", got, err)
	}

	if _, err := Optional(Source{File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatal("expected error for unreadable file")
	}
}
