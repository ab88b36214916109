// Package config loads the client configuration: a "key: value" file,
// an optional .env file next to it, and PATCHUP_* environment overrides.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/ini.v1"

	"github.com/tqbf/patchup/pkg/patcherr"
)

const (
	EnvPrefix      = "PATCHUP"
	DefaultName    = "patchup.conf"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	PatchURI  string `ini:"patch_uri" envconfig:"PATCH_URI"`
	PatchList string `ini:"patch_list" envconfig:"PATCH_LIST"`
	Exe       string `ini:"exe" envconfig:"EXE"`
	Arguments string `ini:"arguments" envconfig:"ARGUMENTS"`

	InstallDir  string        `ini:"install_dir" envconfig:"INSTALL_DIR"`
	StagingDir  string        `ini:"staging_dir" envconfig:"STAGING_DIR"`
	VersionFile string        `ini:"version_file" envconfig:"VERSION_FILE"`
	Tool        string        `ini:"tool" envconfig:"TOOL"`
	Timeout     time.Duration `ini:"timeout" envconfig:"TIMEOUT"`
	// LimitRate is a byte size per second such as "512KB". Empty means
	// unlimited.
	LimitRate string `ini:"limit_rate" envconfig:"LIMIT_RATE"`
	NotifyURI string `ini:"notify_uri" envconfig:"NOTIFY_URI"`

	// Path is the file the configuration was read from.
	Path string `ini:"-" ignored:"true"`
}

// NameFor derives the configuration file name from a binary path, so a
// renamed client reads its own file.
func NameFor(binary string) string {
	base := filepath.Base(binary)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return DefaultName
	}
	return base + ".conf"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, patcherr.New(
			patcherr.KindConfigInvalid, "load config",
			"configuration file not found",
		).WithPath(path)
	}
	if err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindConfigInvalid, "load config",
		).WithPath(path)
	}

	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(dotenv); err != nil &&
		!errors.Is(err, fs.ErrNotExist) {
		return nil, patcherr.Wrap(
			err, patcherr.KindConfigInvalid, "load .env",
		).WithPath(dotenv)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindConfigInvalid, "load config",
		).WithPath(path)
	}
	c.Path = path
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindConfigInvalid, "environment",
		)
	}
	if err := c.normalize(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads "key: value" lines. Lines starting with "//", "#" or ";"
// are comments; unrecognized lines are skipped.
func Parse(data []byte) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
		KeyValueDelimiters:      ":=",
	}, stripSlashComments(data))
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := f.Section(ini.DefaultSection).MapTo(c); err != nil {
		return nil, err
	}
	return c, nil
}

func stripSlashComments(data []byte) []byte {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// normalize validates required keys and resolves relative directories
// against base.
func (c *Config) normalize(base string) error {
	c.PatchURI = strings.TrimSpace(c.PatchURI)
	c.PatchList = strings.TrimSpace(c.PatchList)
	if c.PatchURI == "" {
		return patcherr.New(
			patcherr.KindConfigInvalid, "validate config",
			"configuration value patch_uri must not be empty",
		)
	}
	if c.PatchList == "" {
		return patcherr.New(
			patcherr.KindConfigInvalid, "validate config",
			"configuration value patch_list must not be empty",
		)
	}
	if !strings.HasSuffix(c.PatchURI, "/") {
		c.PatchURI += "/"
	}
	if c.Timeout < 0 {
		return patcherr.New(
			patcherr.KindConfigInvalid, "validate config",
			"timeout must not be negative",
		)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if _, err := c.RateLimit(); err != nil {
		return err
	}

	if c.InstallDir == "" {
		c.InstallDir = "."
	}
	c.InstallDir = resolve(base, c.InstallDir)
	if c.StagingDir != "" {
		c.StagingDir = resolve(base, c.StagingDir)
	}
	if c.VersionFile != "" {
		c.VersionFile = resolve(base, c.VersionFile)
	}
	return nil
}

// RateLimit returns the download limit in bytes per second, 0 for none.
func (c *Config) RateLimit() (int64, error) {
	s := strings.TrimSpace(c.LimitRate)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, patcherr.Wrap(
			fmt.Errorf("limit_rate %q: %w", s, err),
			patcherr.KindConfigInvalid, "validate config",
		)
	}
	return int64(n), nil
}

func resolve(base, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
