package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/pthm/scriptrel"
	"github.com/pthm/scriptrel/internal/backup"
	"github.com/pthm/scriptrel/internal/release"
	"github.com/pthm/scriptrel/internal/textenc"
	"github.com/pthm/scriptrel/pkg/migrator"
	"github.com/pthm/scriptrel/pkg/script"
	"github.com/pthm/scriptrel/pkg/treat"
)

const (
	maxWalkDepth = 25

	// EnvPrefix prefixes every environment override (SCRIPTREL_AUTHOR_INITIALS).
	EnvPrefix = "SCRIPTREL"

	maskedPassword = "********"
)

// Supported database/sql driver names.
const (
	DriverPgx = "pgx"
	DriverPq  = "postgres"
)

// Config represents the scriptrel configuration from scriptrel.yaml.
type Config struct {
	// ProjectRoot is the directory holding the raw sources. Relative paths
	// below are resolved against it. Defaults to the config file directory.
	ProjectRoot string `mapstructure:"project_root" json:"project_root,omitempty"`
	ScriptsDir  string `mapstructure:"scripts_dir" json:"scripts_dir,omitempty"`
	StateDir    string `mapstructure:"state_dir" json:"state_dir,omitempty"`
	BackupDir   string `mapstructure:"backup_dir" json:"backup_dir,omitempty"`
	Encoding    string `mapstructure:"encoding" json:"encoding,omitempty"`

	Author   AuthorConfig   `mapstructure:"author" json:"author,omitempty"`
	Control  ControlConfig  `mapstructure:"control" json:"control,omitempty"`
	Database DatabaseConfig `mapstructure:"database" json:"database,omitempty"`

	Subsystems map[string]SubsystemConfig `mapstructure:"subsystems" json:"subsystems,omitempty"`
}

// AuthorConfig identifies who treats scripts.
type AuthorConfig struct {
	Name     string `mapstructure:"name" json:"name,omitempty"`
	Initials string `mapstructure:"initials" json:"initials,omitempty"`
}

// ControlConfig names the database objects of the version control contract.
type ControlConfig struct {
	Query          string `mapstructure:"query" json:"query,omitempty"`
	VerifyFunction string `mapstructure:"verify_function" json:"verify_function,omitempty"`
	MarkFunction   string `mapstructure:"mark_function" json:"mark_function,omitempty"`
}

// DatabaseConfig holds settings shared by every tier.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" json:"driver,omitempty"`
}

// SubsystemConfig describes one script family and its two tiers.
type SubsystemConfig struct {
	Name   string     `mapstructure:"name" json:"name,omitempty"`
	Letter string     `mapstructure:"letter" json:"letter,omitempty"`
	Source string     `mapstructure:"source" json:"source,omitempty"`
	Dir    string     `mapstructure:"dir" json:"dir,omitempty"`
	Test   TierConfig `mapstructure:"test" json:"test,omitempty"`
	Dev    TierConfig `mapstructure:"dev" json:"dev,omitempty"`
}

// TierConfig holds database connection settings for one tier.
type TierConfig struct {
	URL      string `mapstructure:"url" json:"url,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Name     string `mapstructure:"name" json:"name,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode,omitempty"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	// 1. Set defaults first (lowest precedence)
	setDefaults(v)

	// 2. Set up environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. Find and load config file
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("%w: reading config file: %w", scriptrel.ErrConfiguration, err)
		}
	}

	// 4. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("%w: unmarshaling config: %w", scriptrel.ErrConfiguration, err)
	}

	// 5. Anchor relative paths
	if err := cfg.resolveRoot(configPath); err != nil {
		return nil, configPath, err
	}

	return &cfg, configPath, nil
}

// builtinSubsystems are configured out of the box; the file only needs the
// connection settings.
var builtinSubsystems = []struct {
	key    string
	sub    script.Subsystem
	source string
}{
	{"gestor", script.Gestor, "gestor.sql"},
	{"supervisor", script.Supervisor, "supervisor.sql"},
}

func setDefaults(v *viper.Viper) {
	// Layout defaults
	v.SetDefault("project_root", "")
	v.SetDefault("scripts_dir", filepath.Join("src", "Scripts"))
	v.SetDefault("state_dir", "src")
	v.SetDefault("backup_dir", filepath.Join("src", ".preprocess_backup"))
	v.SetDefault("encoding", "windows-1252")

	// Author defaults
	v.SetDefault("author.name", "")
	v.SetDefault("author.initials", "")

	// Control contract defaults
	v.SetDefault("control.query", migrator.DefaultControlQuery)
	v.SetDefault("control.verify_function", treat.DefaultVerifyFunc)
	v.SetDefault("control.mark_function", treat.DefaultMarkFunc)

	// Database defaults
	v.SetDefault("database.driver", DriverPgx)

	// Subsystem defaults. Every tier key gets a default so env overrides
	// such as SCRIPTREL_SUBSYSTEMS_GESTOR_TEST_HOST are picked up.
	for _, b := range builtinSubsystems {
		prefix := "subsystems." + b.key + "."
		v.SetDefault(prefix+"name", b.sub.Name)
		v.SetDefault(prefix+"letter", string(b.sub.Letter))
		v.SetDefault(prefix+"source", b.source)
		v.SetDefault(prefix+"dir", b.sub.Name)
		for _, tier := range []string{"test", "dev"} {
			v.SetDefault(prefix+tier+".url", "")
			v.SetDefault(prefix+tier+".host", "")
			v.SetDefault(prefix+tier+".port", 5432)
			v.SetDefault(prefix+tier+".name", "")
			v.SetDefault(prefix+tier+".user", "")
			v.SetDefault(prefix+tier+".password", "")
			v.SetDefault(prefix+tier+".sslmode", "prefer")
		}
	}
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for scriptrel.yaml or scriptrel.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: config file not found: %s", scriptrel.ErrConfiguration, explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"scriptrel.yaml", "scriptrel.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Check for repo boundary (.git file or directory)
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil // No config found, use defaults
}

func (c *Config) resolveRoot(configPath string) error {
	base, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", configPath, err)
		}
		base = filepath.Dir(abs)
	}
	switch {
	case c.ProjectRoot == "":
		c.ProjectRoot = base
	case !filepath.IsAbs(c.ProjectRoot):
		c.ProjectRoot = filepath.Join(base, c.ProjectRoot)
	}
	return nil
}

// Path resolves p against the project root.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

// Validate reports the first setting that prevents a treat or release run.
func (c *Config) Validate() error {
	if !script.ValidInitials(c.Author.Initials) {
		return fmt.Errorf("%w: author.initials must be exactly two letters, got %q",
			scriptrel.ErrConfiguration, c.Author.Initials)
	}
	if _, err := textenc.New(c.Encoding); err != nil {
		return err
	}
	if _, err := c.Driver(); err != nil {
		return err
	}
	_, err := c.ReleaseSubsystems()
	return err
}

// Driver returns the database/sql driver name.
func (c *Config) Driver() (string, error) {
	switch strings.ToLower(c.Database.Driver) {
	case "", DriverPgx:
		return DriverPgx, nil
	case DriverPq, "pq":
		return DriverPq, nil
	}
	return "", fmt.Errorf("%w: unknown database.driver %q (use %s or %s)",
		scriptrel.ErrConfiguration, c.Database.Driver, DriverPgx, DriverPq)
}

// SubsystemNames returns the configured subsystem keys in a stable order.
func (c *Config) SubsystemNames() []string {
	names := make([]string, 0, len(c.Subsystems))
	for name := range c.Subsystems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReleaseSubsystem resolves the paths of one configured subsystem.
func (c *Config) ReleaseSubsystem(key string) (release.Subsystem, error) {
	sc, ok := c.Subsystems[strings.ToLower(key)]
	if !ok {
		return release.Subsystem{}, fmt.Errorf("%w: unknown subsystem %q (configured: %s)",
			scriptrel.ErrConfiguration, key, strings.Join(c.SubsystemNames(), ", "))
	}
	if len(sc.Letter) != 1 || !isASCIILetter(sc.Letter[0]) {
		return release.Subsystem{}, fmt.Errorf("%w: subsystems.%s.letter must be one letter, got %q",
			scriptrel.ErrConfiguration, key, sc.Letter)
	}
	name := sc.Name
	if name == "" {
		name = key
	}
	source := sc.Source
	if source == "" {
		source = strings.ToLower(name) + ".sql"
	}
	dir := sc.Dir
	if dir == "" {
		dir = name
	}
	return release.Subsystem{
		Subsystem: script.Subsystem{Name: name, Letter: strings.ToUpper(sc.Letter)[0]},
		Source:    c.Path(source),
		Dir:       filepath.Join(c.Path(c.ScriptsDir), dir),
	}, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ReleaseSubsystems resolves every configured subsystem. Letters must be
// unique since they are part of the script id.
func (c *Config) ReleaseSubsystems() ([]release.Subsystem, error) {
	seen := make(map[byte]string)
	subs := make([]release.Subsystem, 0, len(c.Subsystems))
	for _, key := range c.SubsystemNames() {
		sub, err := c.ReleaseSubsystem(key)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[sub.Letter]; dup {
			return nil, fmt.Errorf("%w: subsystems %s and %s share letter %c",
				scriptrel.ErrConfiguration, other, key, sub.Letter)
		}
		seen[sub.Letter] = key
		subs = append(subs, sub)
	}
	return subs, nil
}

// Workspace builds the release workspace described by the config.
func (c *Config) Workspace() (*release.Workspace, error) {
	codec, err := textenc.New(c.Encoding)
	if err != nil {
		return nil, err
	}
	return &release.Workspace{
		StateDir:   c.Path(c.StateDir),
		Ledger:     backup.New(c.Path(c.BackupDir)),
		Codec:      codec,
		Author:     c.Author.Name,
		Initials:   c.Author.Initials,
		VerifyFunc: c.Control.VerifyFunction,
		MarkFunc:   c.Control.MarkFunction,
	}, nil
}

// MigratorOptions returns the applier options described by the config.
func (c *Config) MigratorOptions() (migrator.Options, error) {
	codec, err := textenc.New(c.Encoding)
	if err != nil {
		return migrator.Options{}, err
	}
	return migrator.Options{
		ControlQuery: c.Control.Query,
		MarkFunc:     c.Control.MarkFunction,
		Codec:        codec,
	}, nil
}

// Tier returns the connection settings of a subsystem tier ("test" or "dev").
func (c *Config) Tier(key, tier string) (TierConfig, error) {
	sc, ok := c.Subsystems[strings.ToLower(key)]
	if !ok {
		return TierConfig{}, fmt.Errorf("%w: unknown subsystem %q", scriptrel.ErrConfiguration, key)
	}
	switch strings.ToLower(tier) {
	case "test":
		return sc.Test, nil
	case "dev":
		return sc.Dev, nil
	}
	return TierConfig{}, fmt.Errorf("%w: unknown tier %q (use test or dev)", scriptrel.ErrConfiguration, tier)
}

// DSN returns the database connection string.
// If url is set, it's returned directly.
// Otherwise, builds a DSN from discrete fields.
func (t TierConfig) DSN() (string, error) {
	if t.URL != "" {
		return t.URL, nil
	}

	if t.Host == "" {
		return "", fmt.Errorf("%w: host is required when url is not set", scriptrel.ErrConfiguration)
	}
	if t.Name == "" {
		return "", fmt.Errorf("%w: name is required when url is not set", scriptrel.ErrConfiguration)
	}
	if t.User == "" {
		return "", fmt.Errorf("%w: user is required when url is not set", scriptrel.ErrConfiguration)
	}

	port := t.Port
	if port == 0 {
		port = 5432
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", t.Host, port),
		Path:   "/" + t.Name,
	}

	if t.Password != "" {
		u.User = url.UserPassword(t.User, t.Password)
	} else {
		u.User = url.User(t.User)
	}

	if t.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", t.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Configured reports whether any connection setting is present.
func (t TierConfig) Configured() bool {
	return t.URL != "" || t.Host != ""
}

// Masked returns a copy of the config safe to print: passwords, including
// those embedded in URLs, are replaced.
func (c *Config) Masked() *Config {
	out := *c
	out.Subsystems = make(map[string]SubsystemConfig, len(c.Subsystems))
	for key, sc := range c.Subsystems {
		sc.Test = sc.Test.masked()
		sc.Dev = sc.Dev.masked()
		out.Subsystems[key] = sc
	}
	return &out
}

func (t TierConfig) masked() TierConfig {
	if t.Password != "" {
		t.Password = maskedPassword
	}
	if t.URL != "" {
		if u, err := url.Parse(t.URL); err == nil && u.User != nil {
			if _, has := u.User.Password(); has {
				u.User = url.UserPassword(u.User.Username(), maskedPassword)
				t.URL = u.String()
			}
		}
	}
	return t
}
