// Package manifest handles cellvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/cellvm/vm"
)

// FileName is the name of the configuration file.
const FileName = "cellvm.toml"

// Manifest represents a cellvm.toml project configuration.
type Manifest struct {
	Project   Project         `toml:"project"`
	VM        VMConfig        `toml:"vm"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Log       LogConfig       `toml:"log"`
	Store     StoreConfig     `toml:"store"`

	// Dir is the directory containing the cellvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Image string `toml:"image"` // Program image run when none is given
}

// VMConfig configures execution limits. Zero selects the default limit,
// a negative value removes it.
type VMConfig struct {
	StackLimit int  `toml:"stack-limit"`
	FrameLimit int  `toml:"frame-limit"`
	Trace      bool `toml:"trace"`
}

// SchedulerConfig configures how a synchronous POLL drives tasks.
type SchedulerConfig struct {
	MaxPasses   int           `toml:"max-passes"`   // 0 is unbounded
	IdleBackoff time.Duration `toml:"idle-backoff"` // e.g. "1ms"
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// StoreConfig configures the program library.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no cellvm.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a cellvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if m.Scheduler.MaxPasses < 0 {
		return nil, fmt.Errorf("%s: scheduler.max-passes must not be negative", path)
	}
	if m.Scheduler.IdleBackoff < 0 {
		return nil, fmt.Errorf("%s: scheduler.idle-backoff must not be negative", path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.VM.StackLimit == 0 {
		m.VM.StackLimit = vm.DefaultStackLimit
	}
	if m.VM.FrameLimit == 0 {
		m.VM.FrameLimit = vm.DefaultFrameLimit
	}
	if m.Scheduler.IdleBackoff == 0 {
		m.Scheduler.IdleBackoff = vm.DefaultIdleBackoff
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".cellvm", "programs.db")
	}
}

// FindAndLoad walks up from startDir to find a cellvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// VMOptions converts the configuration to VM options.
func (m *Manifest) VMOptions() []vm.Option {
	return []vm.Option{
		vm.WithStackLimit(limit(m.VM.StackLimit)),
		vm.WithFrameLimit(limit(m.VM.FrameLimit)),
		vm.WithTrace(m.VM.Trace),
		vm.WithMaxPasses(m.Scheduler.MaxPasses),
		vm.WithIdleBackoff(m.Scheduler.IdleBackoff),
	}
}

// limit maps a configured limit to the VM's convention, where 0 is
// unbounded.
func limit(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// StorePath returns the absolute path of the program library.
func (m *Manifest) StorePath() string {
	return m.resolve(m.Store.Path)
}

// ImagePath returns the absolute path of the default program image, or ""
// if none is configured.
func (m *Manifest) ImagePath() string {
	if m.Project.Image == "" {
		return ""
	}
	return m.resolve(m.Project.Image)
}

// LogFilePath returns the absolute path of the log file, or "" to log to
// stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
