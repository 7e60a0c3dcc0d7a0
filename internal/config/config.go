// Package config loads the single pasys configuration file and turns it into
// supervisor units.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/pasys/internal/env"
	"github.com/loykin/pasys/internal/jackgraph"
	"github.com/loykin/pasys/internal/logger"
	"github.com/loykin/pasys/internal/probe"
	"github.com/loykin/pasys/internal/process"
	"github.com/loykin/pasys/internal/reconciler"
	"github.com/loykin/pasys/internal/supervisor"
	"github.com/spf13/viper"
)

// ErrConfigMissing covers a missing file, an undefined unit and a unit
// lacking a required field. It is fatal before anything is spawned.
var ErrConfigMissing = errors.New("configuration missing")

// DefaultPath is used when no --config flag is given.
const DefaultPath = "~/.config/pasys/pasys.yaml"

const (
	defaultStateDir  = "~/.config/pasys"
	defaultAPIListen = "127.0.0.1:9911"
	watchdogSuffix   = "-watchdog"
	defaultLogLevel  = "info"
	defaultLogFormat = "color"
	envPrefix        = "PASYS"
)

// FileConfig is the on-disk shape of the configuration.
type FileConfig struct {
	StateDir string        `mapstructure:"state_dir"`
	Env      []string      `mapstructure:"env"`
	EnvFiles []string      `mapstructure:"env_files"`
	UseOSEnv bool          `mapstructure:"use_os_env"`
	Log      LogConfig     `mapstructure:"log"`
	UnitLog  logger.Config `mapstructure:"unit_log"`
	Metrics  ListenConfig  `mapstructure:"metrics"`
	API      ListenConfig  `mapstructure:"api"`
	History  []string      `mapstructure:"history"`
	Units    []UnitConfig  `mapstructure:"units"`
}

// LogConfig configures the daemon's own log.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ListenConfig struct {
	Listen string `mapstructure:"listen"`
}

type UnitConfig struct {
	Name        string           `mapstructure:"name"`
	Command     string           `mapstructure:"command"`
	Binary      string           `mapstructure:"binary"`
	Args        []string         `mapstructure:"args"`
	WorkDir     string           `mapstructure:"work_dir"`
	Env         []string         `mapstructure:"env"`
	Owner       string           `mapstructure:"owner"`
	PIDFile     string           `mapstructure:"pid_file"`
	Log         *logger.Config   `mapstructure:"log"`
	StopPattern string           `mapstructure:"stop_pattern"`
	StopCommand string           `mapstructure:"stop_command"`
	StopWait    time.Duration    `mapstructure:"stop_wait"`
	StartDelay  time.Duration    `mapstructure:"start_delay"`
	StartSecs   time.Duration    `mapstructure:"start_secs"`
	Autostart   bool             `mapstructure:"autostart"`
	Requires    []probe.Spec     `mapstructure:"requires"`
	Ready       *probe.Spec      `mapstructure:"ready"`
	Hooks       supervisor.Hooks `mapstructure:"hooks"`
	Watchdog    *WatchdogConfig  `mapstructure:"watchdog"`
}

type WatchdogConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Verbose  bool          `mapstructure:"verbose"`
	Edges    []EdgeConfig  `mapstructure:"edges"`
	Pairs    []PairConfig  `mapstructure:"pairs"`
}

// EdgeConfig is one desired connection. Disconnect inverts it.
type EdgeConfig struct {
	Src        string `mapstructure:"src"`
	Dst        string `mapstructure:"dst"`
	Disconnect bool   `mapstructure:"disconnect"`
}

// PairConfig expands to Count numbered edges, e.g. out_0,out_1 to
// input_1,input_2.
type PairConfig struct {
	Src     string `mapstructure:"src"`
	Dst     string `mapstructure:"dst"`
	Count   int    `mapstructure:"count"`
	SrcBase int    `mapstructure:"src_base"`
	DstBase int    `mapstructure:"dst_base"`
}

// Config is the loaded configuration. It is created once at program entry
// and passed to constructors.
type Config struct {
	Path string
	File FileConfig
	// Executable is the pasys binary used for watchdog companions.
	Executable string

	env env.Env
}

// Load reads path (YAML, TOML or JSON by extension). PASYS_* variables
// override top-level keys, e.g. PASYS_STATE_DIR.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path = ExpandHome(path)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrConfigMissing, path)
		}
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		v.SetConfigType("toml")
	case ".json":
		v.SetConfigType("json")
	default:
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("state_dir", defaultStateDir)
	v.SetDefault("use_os_env", true)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("log.file", "")
	v.SetDefault("api.listen", defaultAPIListen)
	v.SetDefault("metrics.listen", "")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return New(path, fc)
}

// New validates fc and prepares the global environment.
func New(path string, fc FileConfig) (*Config, error) {
	fc.StateDir = ExpandHome(fc.StateDir)
	if fc.StateDir == "" {
		fc.StateDir = ExpandHome(defaultStateDir)
	}
	e := env.New().WithOS(fc.UseOSEnv)
	for _, f := range fc.EnvFiles {
		var err error
		if e, err = e.WithFile(ExpandHome(f)); err != nil {
			return nil, fmt.Errorf("env file: %w", err)
		}
	}
	for _, kv := range fc.Env {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("env %q: must be KEY=VALUE", kv)
		}
		e = e.WithSet(strings.TrimSpace(k), val)
	}
	seen := make(map[string]bool, len(fc.Units))
	for _, u := range fc.Units {
		if strings.TrimSpace(u.Name) == "" {
			return nil, fmt.Errorf("%w: unit without name", ErrConfigMissing)
		}
		if seen[u.Name] {
			return nil, fmt.Errorf("duplicate unit %q", u.Name)
		}
		seen[u.Name] = true
	}
	exe, _ := os.Executable()
	return &Config{Path: path, File: fc, Executable: exe, env: e}, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func (c *Config) StateDir() string { return c.File.StateDir }

// Env is the global environment: OS (when use_os_env), env_files, env.
func (c *Config) Env() env.Env { return c.env }

// Graph returns the JACK graph driven through the jack_* tools.
func (c *Config) Graph() jackgraph.Graph { return jackgraph.NewCLI(c.env.Merge(nil)) }

// LoggerOptions maps the log section onto logger options.
func (c *Config) LoggerOptions() logger.Options {
	l := c.File.Log
	return logger.Options{
		Level:  l.Level,
		Format: l.Format,
		File:   ExpandHome(l.File),
		Config: logger.Config{
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

// Names lists the configured units in file order.
func (c *Config) Names() []string {
	out := make([]string, 0, len(c.File.Units))
	for _, u := range c.File.Units {
		out = append(out, u.Name)
	}
	return out
}

// Units builds every configured unit.
func (c *Config) Units() ([]supervisor.Unit, error) {
	out := make([]supervisor.Unit, 0, len(c.File.Units))
	for _, uc := range c.File.Units {
		u, err := c.build(uc)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Unit builds the unit called name.
func (c *Config) Unit(name string) (supervisor.Unit, error) {
	for _, uc := range c.File.Units {
		if uc.Name == name {
			return c.build(uc)
		}
	}
	return supervisor.Unit{}, fmt.Errorf("%w: unit %q is not defined in %s", ErrConfigMissing, name, c.Path)
}

func (c *Config) build(uc UnitConfig) (supervisor.Unit, error) {
	if strings.TrimSpace(uc.Binary) == "" && strings.TrimSpace(uc.Command) == "" {
		return supervisor.Unit{}, fmt.Errorf("%w: unit %q needs binary or command", ErrConfigMissing, uc.Name)
	}
	spec := process.Spec{
		Name:        uc.Name,
		Binary:      ExpandHome(uc.Binary),
		Args:        uc.Args,
		Command:     uc.Command,
		WorkDir:     ExpandHome(uc.WorkDir),
		Env:         uc.Env,
		Owner:       uc.Owner,
		PIDFile:     ExpandHome(uc.PIDFile),
		StopPattern: uc.StopPattern,
		Log:         c.unitLog(uc),
	}
	if spec.PIDFile == "" {
		spec.PIDFile = filepath.Join(c.StateDir(), uc.Name+".pid")
	}
	u := supervisor.Unit{
		Process:     spec,
		StopCommand: uc.StopCommand,
		StopWait:    uc.StopWait,
		StartDelay:  uc.StartDelay,
		StartSecs:   uc.StartSecs,
		Hooks:       uc.Hooks,
		Autostart:   uc.Autostart,
	}
	for i, ps := range uc.Requires {
		g, err := ps.Gate()
		if err != nil {
			return supervisor.Unit{}, fmt.Errorf("unit %q requires[%d]: %w", uc.Name, i, err)
		}
		u.Requires = append(u.Requires, g)
	}
	if uc.Ready != nil {
		g, err := uc.Ready.Gate()
		if err != nil {
			return supervisor.Unit{}, fmt.Errorf("unit %q ready: %w", uc.Name, err)
		}
		u.Ready = &g
	}
	if uc.Watchdog != nil {
		w, err := buildWatchdog(*uc.Watchdog)
		if err != nil {
			return supervisor.Unit{}, fmt.Errorf("unit %q watchdog: %w", uc.Name, err)
		}
		u.Watchdog = w
		u.Companion = c.companion(uc.Name, w.Verbose)
	}
	if err := u.Validate(); err != nil {
		return supervisor.Unit{}, err
	}
	return u, nil
}

// unitLog layers the unit's log section over unit_log and fills the default
// path "<state_dir>/.<name>_events".
func (c *Config) unitLog(uc UnitConfig) logger.Config {
	lc := c.File.UnitLog
	lc.Path = ""
	if uc.Log != nil {
		if uc.Log.Path != "" {
			lc.Path = ExpandHome(uc.Log.Path)
		}
		if uc.Log.Rotate {
			lc.Rotate = true
		}
		if uc.Log.MaxSizeMB != 0 {
			lc.MaxSizeMB = uc.Log.MaxSizeMB
		}
		if uc.Log.MaxBackups != 0 {
			lc.MaxBackups = uc.Log.MaxBackups
		}
		if uc.Log.MaxAgeDays != 0 {
			lc.MaxAgeDays = uc.Log.MaxAgeDays
		}
		if uc.Log.Compress {
			lc.Compress = true
		}
	}
	if lc.Path == "" {
		lc.Path = filepath.Join(c.StateDir(), "."+uc.Name+"_events")
	}
	return lc
}

func buildWatchdog(wc WatchdogConfig) (*supervisor.Watchdog, error) {
	w := &supervisor.Watchdog{Interval: wc.Interval, Verbose: wc.Verbose}
	for _, ec := range wc.Edges {
		src, err := jackgraph.ParseEndpoint(ec.Src)
		if err != nil {
			return nil, err
		}
		dst, err := jackgraph.ParseEndpoint(ec.Dst)
		if err != nil {
			return nil, err
		}
		w.Edges = append(w.Edges, jackgraph.Edge{Src: src, Dst: dst, Connected: !ec.Disconnect})
	}
	for _, pc := range wc.Pairs {
		if pc.Count <= 0 {
			return nil, fmt.Errorf("pair %s -> %s: count must be positive", pc.Src, pc.Dst)
		}
		edges, err := reconciler.PairEdges(pc.Src, pc.Dst, pc.Count, pc.SrcBase, pc.DstBase)
		if err != nil {
			return nil, err
		}
		w.Edges = append(w.Edges, edges...)
	}
	if len(w.Edges) == 0 {
		return nil, errors.New("no edges")
	}
	return w, nil
}

// companion describes the out-of-process watchdog "pasys watchdog <name>"
// used when the unit is started from the CLI.
func (c *Config) companion(name string, verbose bool) *supervisor.Unit {
	if c.Executable == "" {
		return nil
	}
	cname := name + watchdogSuffix
	args := []string{"watchdog", name, "--config", c.Path}
	if verbose {
		args = append(args, "-v")
	}
	return &supervisor.Unit{
		Process: process.Spec{
			Name:    cname,
			Binary:  c.Executable,
			Args:    args,
			PIDFile: filepath.Join(c.StateDir(), cname+".pid"),
			Log:     logger.Config{Path: filepath.Join(c.StateDir(), "."+cname+"_events")},
		},
	}
}
