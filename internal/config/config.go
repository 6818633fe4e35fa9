package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Default path templates, relative to the shapefile root
const (
	DefaultHierarchyLayout      = "{root}/{district}/{name}.shp"
	DefaultDistrictParLayout    = "{root}/{district}/{name}.shp"
	DefaultDistrictParAnyLayout = "{root}/{district}/{name}*.shp"
)

// Attribute maps a boundary layer name to its hierarchy level and the DBF
// fields read from every record. The first field is the code, the second
// (when present) is the display name.
type Attribute struct {
	Level int32    `yaml:"level"`
	Names []string `yaml:"names"`
}

// Shapefile describes where boundary files live and how their attributes are read
type Shapefile struct {
	Path       string               `yaml:"path"`
	Encoding   string               `yaml:"encoding,omitempty"` // e.g. "euc-kr"; empty means UTF-8
	Attributes map[string]Attribute `yaml:"attributes"`
}

// Layout holds the file-path template of each tier
type Layout struct {
	Hierarchy      string `yaml:"hierarchy,omitempty"`
	DistrictPar    string `yaml:"district_par,omitempty"`
	DistrictParAny string `yaml:"district_par_any,omitempty"`
}

// Coordinate is a lon/lat pair in decimal degrees
type Coordinate struct {
	Lon float64 `yaml:"lon"`
	Lat float64 `yaml:"lat"`
}

// Search configures index construction and querying
type Search struct {
	Shapefile      Shapefile `yaml:"shapefile"`
	Layout         Layout    `yaml:"layout,omitempty"`
	Districts      []string  `yaml:"districts"`
	Hierarchies    []string  `yaml:"hierarchies"`
	DistrictPar    []string  `yaml:"district_par"`
	DistrictParAny []string  `yaml:"district_par_any"`

	Debug        bool       `yaml:"debug"`                // log every matched region
	DebugName    string     `yaml:"debug_name,omitempty"` // trace every accepted point of this record
	Strict       bool       `yaml:"strict"`               // treat anomalous rings as fatal
	QueryWorkers int        `yaml:"query_workers,omitempty"`
	Warmup       Coordinate `yaml:"warmup"`
}

// Server configures the REST adapter
type Server struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    int           `yaml:"rate_limit"` // requests per window and client IP, 0 disables
	RateWindow   time.Duration `yaml:"rate_window"`
}

// Database is the PostGIS target of the export command
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	Table    string `yaml:"table"`
}

// Config holds the global configuration of the service
type Config struct {
	Search   Search   `yaml:"search"`
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`

	// Processing settings
	Workers int `yaml:"workers"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file,omitempty"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Search: Search{
			Shapefile: Shapefile{
				Path:       "./data",
				Attributes: map[string]Attribute{},
			},
			Layout: Layout{
				Hierarchy:      DefaultHierarchyLayout,
				DistrictPar:    DefaultDistrictParLayout,
				DistrictParAny: DefaultDistrictParAnyLayout,
			},
			QueryWorkers: runtime.NumCPU(),
			Warmup:       Coordinate{Lon: 127.1, Lat: 35.1},
		},
		Server: Server{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			RateWindow:   time.Minute,
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			Name:   "gis",
			User:   "postgres",
			Schema: "public",
			Table:  "revgeo_boundaries",
		},
		Workers:         runtime.NumCPU(),
		MetricsInterval: 30 * time.Second,
	}
}

// Load reads a YAML configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.fillLayoutDefaults()
	return cfg, nil
}

func (c *Config) fillLayoutDefaults() {
	if c.Search.Layout.Hierarchy == "" {
		c.Search.Layout.Hierarchy = DefaultHierarchyLayout
	}
	if c.Search.Layout.DistrictPar == "" {
		c.Search.Layout.DistrictPar = DefaultDistrictParLayout
	}
	if c.Search.Layout.DistrictParAny == "" {
		c.Search.Layout.DistrictParAny = DefaultDistrictParAnyLayout
	}
	if c.Search.Shapefile.Attributes == nil {
		c.Search.Shapefile.Attributes = map[string]Attribute{}
	}
}

// ApplyEnv overrides settings from REVGEO_* environment variables
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"REVGEO_SHAPEFILE_PATH": &c.Search.Shapefile.Path,
		"REVGEO_SERVER_HOST":    &c.Server.Host,
		"REVGEO_LOG_FILE":       &c.LogFile,
		"REVGEO_DB_HOST":        &c.Database.Host,
		"REVGEO_DB_NAME":        &c.Database.Name,
		"REVGEO_DB_USER":        &c.Database.User,
		"REVGEO_DB_PASSWORD":    &c.Database.Password,
		"REVGEO_DB_SCHEMA":      &c.Database.Schema,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REVGEO_SERVER_PORT": &c.Server.Port,
		"REVGEO_DB_PORT":     &c.Database.Port,
		"REVGEO_WORKERS":     &c.Workers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Names returns every layer name referenced by any tier
func (s *Search) Names() []string {
	names := make([]string, 0, len(s.Hierarchies)+len(s.DistrictPar)+len(s.DistrictParAny))
	names = append(names, s.Hierarchies...)
	names = append(names, s.DistrictPar...)
	names = append(names, s.DistrictParAny...)
	return lo.Uniq(names)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	s := &c.Search
	if len(s.Districts) == 0 {
		return fmt.Errorf("at least one district is required")
	}
	if len(s.Hierarchies) == 0 {
		return fmt.Errorf("at least one hierarchy is required")
	}
	if dups := lo.FindDuplicates(s.Districts); len(dups) > 0 {
		return fmt.Errorf("duplicate districts: %s", strings.Join(dups, ", "))
	}
	for _, name := range s.Names() {
		attr, ok := s.Shapefile.Attributes[name]
		if !ok {
			return fmt.Errorf("no attribute mapping for %q", name)
		}
		if len(attr.Names) == 0 {
			return fmt.Errorf("attribute mapping for %q has no field names", name)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if s.QueryWorkers < 1 {
		return fmt.Errorf("query_workers must be at least 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// ExpandPath fills a tier path template for one district and layer name
func (s *Search) ExpandPath(template, district, name string) string {
	return strings.NewReplacer(
		"{root}", strings.TrimRight(s.Shapefile.Path, "/"),
		"{district}", district,
		"{name}", name,
	).Replace(template)
}

// Addr returns the listen address of the REST server
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConnectionString returns a PostgreSQL connection string
func (d *Database) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		d.Host, d.Port, d.Name, d.User,
	)
	if d.Password != "" {
		connStr += fmt.Sprintf(" password=%s", d.Password)
	}
	return connStr
}
