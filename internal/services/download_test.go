package services

import (
	"testing"
	"time"
)

func TestReleaseDistributor_filename(t *testing.T) {
	d := &ReleaseDistributor{}

	tests := []struct {
		name     string
		product  string
		platform string
		expected string
	}{
		{name: "linux binary", product: "retailease-pos", platform: "linux-amd64", expected: "retailease-pos-linux-amd64"},
		{name: "darwin binary", product: "retailease-pos", platform: "darwin-arm64", expected: "retailease-pos-darwin-arm64"},
		{name: "windows binary gets .exe", product: "retailease-pos", platform: "windows-amd64", expected: "retailease-pos-windows-amd64.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.filename(tt.product, tt.platform); got != tt.expected {
				t.Errorf("filename() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReleaseDistributor_releaseKey(t *testing.T) {
	d := &ReleaseDistributor{keyPrefix: "releases/"}

	tests := []struct {
		name     string
		product  string
		version  string
		platform string
		expected string
	}{
		{
			name: "standard release key", product: "retailease-pos", version: "1.0.0", platform: "linux-amd64",
			expected: "releases/retailease-pos/1.0.0/linux-amd64/retailease-pos-linux-amd64",
		},
		{
			name: "windows release key", product: "retailease-pos", version: "2.0.0", platform: "windows-amd64",
			expected: "releases/retailease-pos/2.0.0/windows-amd64/retailease-pos-windows-amd64.exe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.releaseKey(tt.product, tt.version, tt.platform); got != tt.expected {
				t.Errorf("releaseKey() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseReleaseKey(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		prefix      string
		product     string
		wantVersion string
		wantPlat    string
		wantOK      bool
	}{
		{
			name: "standard key", key: "releases/retailease-pos/1.0.0/linux-amd64/retailease-pos-linux-amd64",
			prefix: "releases/", product: "retailease-pos", wantVersion: "1.0.0", wantPlat: "linux-amd64", wantOK: true,
		},
		{
			name: "different product does not match", key: "releases/other-app/1.0.0/linux-amd64/other-app-linux-amd64",
			prefix: "releases/", product: "retailease-pos", wantOK: false,
		},
		{
			name: "missing platform segment", key: "releases/retailease-pos/1.0.0",
			prefix: "releases/", product: "retailease-pos", wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, platform, ok := parseReleaseKey(tt.key, tt.prefix, tt.product)
			if ok != tt.wantOK {
				t.Fatalf("parseReleaseKey() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || platform != tt.wantPlat {
				t.Errorf("parseReleaseKey() = (%q, %q), want (%q, %q)", version, platform, tt.wantVersion, tt.wantPlat)
			}
		})
	}
}

func TestReleaseDistributor_GenerateDownloadURL_NilFallsBackToStaticURL(t *testing.T) {
	var d *ReleaseDistributor

	result, err := d.GenerateDownloadURL(nil, "retailease-pos", "1.0.0", "windows-amd64", "https://updates.retailease.io/latest.exe")
	if err != nil {
		t.Fatalf("GenerateDownloadURL() error = %v", err)
	}
	if result.URL != "https://updates.retailease.io/latest.exe" {
		t.Errorf("URL = %q, want static fallback", result.URL)
	}
}

func TestReleaseDistributor_GenerateDownloadURL_NilNoFallbackErrors(t *testing.T) {
	var d *ReleaseDistributor

	if _, err := d.GenerateDownloadURL(nil, "retailease-pos", "1.0.0", "windows-amd64", ""); err == nil {
		t.Fatal("expected an error when no storage backend and no fallback URL are configured")
	}
}

func TestDownloadURL_Structure(t *testing.T) {
	url := DownloadURL{
		URL:       "https://example.com/download",
		ExpiresAt: time.Now().Add(15 * time.Minute),
		ExpiresIn: 900,
		Filename:  "retailease-pos-linux-amd64",
		Size:      10485760,
		Checksum:  "sha256:abc123",
	}

	if url.URL == "" {
		t.Error("URL should not be empty")
	}
	if url.ExpiresIn != 900 {
		t.Errorf("ExpiresIn should be 900, got %d", url.ExpiresIn)
	}
	if url.Size != 10485760 {
		t.Errorf("Size should be 10485760, got %d", url.Size)
	}
}

func TestReleaseInfo_Structure(t *testing.T) {
	info := ReleaseInfo{
		Product:   "retailease-pos",
		Version:   "1.0.0",
		Platforms: []string{"linux-amd64", "darwin-arm64", "windows-amd64"},
	}

	if info.Product != "retailease-pos" {
		t.Errorf("Product should be 'retailease-pos', got %q", info.Product)
	}
	if len(info.Platforms) != 3 {
		t.Errorf("should have 3 platforms, got %d", len(info.Platforms))
	}
}
