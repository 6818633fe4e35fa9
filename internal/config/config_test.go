package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
search:
  shapefile:
    path: /srv/boundaries/
    encoding: euc-kr
    attributes:
      TL_SCCO_CTPRVN: { level: 1, names: [CTPRVN_CD, CTP_KOR_NM] }
      TL_SCCO_SIG:    { level: 2, names: [SIG_CD, SIG_KOR_NM] }
      TL_SCCO_EMD:    { level: 3, names: [EMD_CD, EMD_KOR_NM] }
      AL_D002:        { level: 5, names: [A3, A4, A5] }
  districts: ["11000", "41000"]
  hierarchies: [TL_SCCO_CTPRVN, TL_SCCO_SIG]
  district_par: [TL_SCCO_EMD]
  district_par_any: [AL_D002]
  debug_name: Jongno-gu
  query_workers: 8
  warmup: { lon: 126.97, lat: 37.57 }
server:
  port: 9090
  read_timeout: 2s
workers: 4
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := len(cfg.Search.Districts); got != 2 {
		t.Errorf("expected 2 districts, got %d", got)
	}
	if cfg.Search.Shapefile.Attributes["AL_D002"].Level != 5 {
		t.Errorf("expected AL_D002 level 5, got %d", cfg.Search.Shapefile.Attributes["AL_D002"].Level)
	}
	if cfg.Search.Layout.DistrictParAny != DefaultDistrictParAnyLayout {
		t.Errorf("expected default tier-3 layout, got %q", cfg.Search.Layout.DistrictParAny)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 2*time.Second {
		t.Errorf("expected read timeout 2s, got %v", cfg.Server.ReadTimeout)
	}
	// untouched defaults survive
	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Errorf("expected default write timeout 10s, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Search.Warmup.Lon != 126.97 || cfg.Search.Warmup.Lat != 37.57 {
		t.Errorf("unexpected warmup %+v", cfg.Search.Warmup)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revgeo.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Workers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "no districts",
			mutate:  func(c *Config) { c.Search.Districts = nil },
			wantErr: "district",
		},
		{
			name:    "no hierarchies",
			mutate:  func(c *Config) { c.Search.Hierarchies = nil },
			wantErr: "hierarchy",
		},
		{
			name:    "duplicate district",
			mutate:  func(c *Config) { c.Search.Districts = []string{"11000", "11000"} },
			wantErr: "duplicate",
		},
		{
			name:    "missing tier-3 attribute mapping",
			mutate:  func(c *Config) { c.Search.DistrictParAny = []string{"UNKNOWN"} },
			wantErr: `"UNKNOWN"`,
		},
		{
			name: "mapping without fields",
			mutate: func(c *Config) {
				c.Search.Shapefile.Attributes["SIG"] = Attribute{Level: 2}
			},
			wantErr: "no field names",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Search.Districts = []string{"11000"}
			cfg.Search.Hierarchies = []string{"CTPRVN", "SIG"}
			cfg.Search.Shapefile.Attributes = map[string]Attribute{
				"CTPRVN": {Level: 1, Names: []string{"CD", "NM"}},
				"SIG":    {Level: 2, Names: []string{"CD", "NM"}},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	s := &Search{Shapefile: Shapefile{Path: "/data/"}}

	tests := []struct {
		template string
		want     string
	}{
		{DefaultHierarchyLayout, "/data/41000/TL_SCCO_SIG.shp"},
		{DefaultDistrictParAnyLayout, "/data/41000/TL_SCCO_SIG*.shp"},
		{"{root}/{name}/{district}.shp", "/data/TL_SCCO_SIG/41000.shp"},
	}
	for _, tt := range tests {
		if got := s.ExpandPath(tt.template, "41000", "TL_SCCO_SIG"); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("REVGEO_SHAPEFILE_PATH", "/mnt/shp")
	t.Setenv("REVGEO_SERVER_PORT", "7000")
	t.Setenv("REVGEO_DB_PASSWORD", "secret")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Search.Shapefile.Path != "/mnt/shp" {
		t.Errorf("expected shapefile path override, got %q", cfg.Search.Shapefile.Path)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if !strings.Contains(cfg.Database.ConnectionString(), "password=secret") {
		t.Errorf("expected password in connection string, got %q", cfg.Database.ConnectionString())
	}

	t.Setenv("REVGEO_WORKERS", "many")
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("expected error for non-numeric REVGEO_WORKERS")
	}
}

func TestNamesDeduplicates(t *testing.T) {
	s := &Search{
		Hierarchies:    []string{"A", "B"},
		DistrictPar:    []string{"B", "C"},
		DistrictParAny: []string{"A", "D"},
	}
	got := strings.Join(s.Names(), ",")
	if got != "A,B,C,D" {
		t.Errorf("Names() = %s, want A,B,C,D", got)
	}
}
