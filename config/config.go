/*
Package config loads the service configuration.

SOURCES (later wins):
  1. DefaultConfig()
  2. YAML file (optional; a missing file is not an error)
  3. Environment: AUTHZ_PORT, AUTHZ_DB, AUTHZ_FOLDER_ROOT, LOG_LEVEL, LOG_DEV

EXAMPLE (authz-report.yaml):
  server:
    port: 8080
    max_upload_mb: 512
  database:
    path: ./data/authz.db
  report:
    file_name: DVKH_2241.xlsx
    impute_by: grantee
  folders:
    root: /srv/extracts
    fixed_term_dir: ckh
    common_dir: common
  schedule:
    enabled: true
    interval: 1h
    watch: true
    settle: 30s
  sources:
    authorization: ["MUC 30", "MUC30"]
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warp/authz-report/logging"
	"github.com/warp/authz-report/recon"
	"github.com/warp/authz-report/source"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Logging  logging.Config  `yaml:"logging"`
	Report   ReportConfig    `yaml:"report"`
	Folders  FoldersConfig   `yaml:"folders"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	Sources  source.Patterns `yaml:"sources"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	PreviewRows    int      `yaml:"preview_rows"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ReportConfig struct {
	FileName string `yaml:"file_name"`
	ImputeBy string `yaml:"impute_by"` // grantee, grantor
}

// FoldersConfig controls folder-mode runs. Requested folders must resolve
// under Root; an empty Root disables folder mode over HTTP.
type FoldersConfig struct {
	Root         string `yaml:"root"`
	FixedTermDir string `yaml:"fixed_term_dir"`
	CommonDir    string `yaml:"common_dir"`
}

// ScheduleConfig drives unattended runs over the default folders. A run is
// started only when the folder contents changed since the last one.
type ScheduleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// Watch adds filesystem notifications on top of polling; a check runs
	// once the folders have been quiet for Settle.
	Watch  bool          `yaml:"watch"`
	Settle time.Duration `yaml:"settle"`
}

// Dirs returns the default folders, relative ones resolved under Root.
func (f FoldersConfig) Dirs() (fixedTerm, common string) {
	resolve := func(dir string) string {
		if dir == "" || filepath.IsAbs(dir) || f.Root == "" {
			return dir
		}
		return filepath.Join(f.Root, dir)
	}
	return resolve(f.FixedTermDir), resolve(f.CommonDir)
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			MaxUploadMB:    512,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			PreviewRows:    100,
		},
		Database: DatabaseConfig{
			Path: "./data/authz.db",
		},
		Logging: logging.Config{
			Level: "info",
		},
		Report: ReportConfig{
			FileName: "DVKH_2241.xlsx",
			ImputeBy: recon.ImputeByGrantee,
		},
		Schedule: ScheduleConfig{
			Interval: time.Hour,
			Settle:   30 * time.Second,
		},
		Sources: source.DefaultPatterns(),
	}
}

// Load reads path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("AUTHZ_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTHZ_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("AUTHZ_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AUTHZ_FOLDER_ROOT"); v != "" {
		c.Folders.Root = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if os.Getenv("LOG_DEV") == "1" {
		c.Logging.Dev = true
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		problems = append(problems, "server.max_upload_mb must be positive")
	}
	if c.Server.PreviewRows <= 0 {
		problems = append(problems, "server.preview_rows must be positive")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Report.ImputeBy != recon.ImputeByGrantee && c.Report.ImputeBy != recon.ImputeByGrantor {
		problems = append(problems, fmt.Sprintf("report.impute_by %q must be %s or %s",
			c.Report.ImputeBy, recon.ImputeByGrantee, recon.ImputeByGrantor))
	}
	if c.Report.FileName == "" || filepath.Base(c.Report.FileName) != c.Report.FileName {
		problems = append(problems, fmt.Sprintf("report.file_name %q must be a plain file name", c.Report.FileName))
	}
	if c.Schedule.Enabled {
		if c.Schedule.Interval < time.Minute {
			problems = append(problems, "schedule.interval must be at least 1m")
		}
		if c.Schedule.Watch && c.Schedule.Settle <= 0 {
			problems = append(problems, "schedule.settle must be positive")
		}
		if c.Folders.FixedTermDir == "" || c.Folders.CommonDir == "" {
			problems = append(problems, "schedule needs folders.fixed_term_dir and folders.common_dir")
		}
	}
	for _, k := range source.Kinds {
		if len(c.Sources.For(k)) == 0 {
			problems = append(problems, fmt.Sprintf("sources: no name pattern for %s", k))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
