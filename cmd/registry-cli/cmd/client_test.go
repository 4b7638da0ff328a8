package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/adapters/auth"
	"github.com/foundry/npmstore/internal/adapters/index"
	"github.com/foundry/npmstore/internal/adapters/objectstore"
	"github.com/foundry/npmstore/internal/api/handlers"
	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
	"github.com/foundry/npmstore/internal/plugin"
)

func newTestServer(t *testing.T) *client {
	t.Helper()
	store, err := objectstore.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	logger := zerolog.Nop()
	p := plugin.New(store, index.NewBlobProvider(store, "", logger), services.StorageOptions{}, logger)
	srv := httptest.NewServer(handlers.New(p, auth.NewTokenAuth([]string{"t"}), logger).Router())
	t.Cleanup(srv.Close)
	return &client{server: srv.URL, token: "t"}
}

func TestTarballName(t *testing.T) {
	tests := []struct {
		pkg, version, want string
	}{
		{"left-pad", "1.3.0", "left-pad-1.3.0.tgz"},
		{"@scope/pkg", "2.0.0-beta.1", "pkg-2.0.0-beta.1.tgz"},
	}
	for _, tt := range tests {
		if got := tarballName(tt.pkg, tt.version); got != tt.want {
			t.Errorf("tarballName(%q, %q) = %q, want %q", tt.pkg, tt.version, got, tt.want)
		}
	}
}

func TestPathsEscapeScopedNames(t *testing.T) {
	if got := packagePath("@scope/pkg"); got != "/api/v1/packages/@scope%2Fpkg" {
		t.Errorf("packagePath = %s", got)
	}
	if got := tarballPath("@scope/pkg", "pkg-1.0.0.tgz"); got != "/api/v1/packages/@scope%2Fpkg/-/pkg-1.0.0.tgz" {
		t.Errorf("tarballPath = %s", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordVersionCreatesThenMerges(t *testing.T) {
	c := newTestServer(t)

	if err := recordVersion(c, "@scope/pkg", "1.0.0", "latest", json.RawMessage(`{"version":"1.0.0"}`)); err != nil {
		t.Fatalf("first version: %v", err)
	}
	if err := recordVersion(c, "@scope/pkg", "1.1.0", "next", json.RawMessage(`{"version":"1.1.0"}`)); err != nil {
		t.Fatalf("second version: %v", err)
	}

	var m models.Manifest
	if _, err := c.doJSON(http.MethodGet, packagePath("@scope/pkg"), nil, &m, http.StatusOK); err != nil {
		t.Fatalf("reading package: %v", err)
	}
	if len(m.Versions) != 2 {
		t.Errorf("versions = %v, want 2 entries", m.Versions)
	}
	if m.DistTags["latest"] != "1.0.0" || m.DistTags["next"] != "1.1.0" {
		t.Errorf("dist-tags = %v", m.DistTags)
	}

	var names []string
	if _, err := c.doJSON(http.MethodGet, packagesPath(), nil, &names, http.StatusOK); err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(names) != 1 || names[0] != "@scope/pkg" {
		t.Errorf("names = %v", names)
	}
}

func TestForgetVersionDropsTags(t *testing.T) {
	c := newTestServer(t)

	if err := recordVersion(c, "pkg", "1.0.0", "latest", json.RawMessage(`{"version":"1.0.0"}`)); err != nil {
		t.Fatalf("first version: %v", err)
	}
	if err := recordVersion(c, "pkg", "1.1.0", "next", json.RawMessage(`{"version":"1.1.0"}`)); err != nil {
		t.Fatalf("second version: %v", err)
	}

	found, err := forgetVersion(c, "pkg", "1.1.0")
	if err != nil || !found {
		t.Fatalf("forgetVersion = %v, %v; want true, nil", found, err)
	}

	var m models.Manifest
	if _, err := c.doJSON(http.MethodGet, packagePath("pkg"), nil, &m, http.StatusOK); err != nil {
		t.Fatalf("reading package: %v", err)
	}
	if _, ok := m.Versions["1.1.0"]; ok || len(m.Versions) != 1 {
		t.Errorf("versions = %v, want only 1.0.0", m.Versions)
	}
	if _, ok := m.DistTags["next"]; ok || m.DistTags["latest"] != "1.0.0" {
		t.Errorf("dist-tags = %v", m.DistTags)
	}

	found, err = forgetVersion(c, "pkg", "9.9.9")
	if err != nil || found {
		t.Errorf("unknown version: forgetVersion = %v, %v; want false, nil", found, err)
	}
}

func TestDoJSONReportsServerMessage(t *testing.T) {
	c := newTestServer(t)

	status, err := c.doJSON(http.MethodDelete, packagePath("missing"), nil, nil, http.StatusOK)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}
