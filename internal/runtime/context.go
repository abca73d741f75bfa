// Package runtime wires a cmdstack workspace together: configuration, logging,
// the badger store, the object store, the command manager and its scripts.
package runtime

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/manav03panchal/cmdstack/internal/command"
	"github.com/manav03panchal/cmdstack/internal/config"
	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
	"github.com/manav03panchal/cmdstack/internal/model"
	"github.com/manav03panchal/cmdstack/internal/object"
	"github.com/manav03panchal/cmdstack/internal/output"
	"github.com/manav03panchal/cmdstack/internal/script"
	"github.com/manav03panchal/cmdstack/internal/storage"
)

// MemoryPath selects an in-memory workspace wherever a database path is
// accepted.
const MemoryPath = ":memory:"

// Context holds the application runtime context.
type Context struct {
	Config    *config.RuntimeConfig
	DB        *storage.DB
	Formatter *output.Formatter

	Objects *object.Store
	Manager *command.Manager
	Scripts []*script.Command

	// Repositories
	ObjectRepo  *storage.ObjectRepo
	MacroRepo   *storage.MacroRepo
	HistoryRepo *storage.HistoryRepo

	// Recovery is the integrity check run when the workspace was opened.
	Recovery *storage.RecoveryStatus

	// Debug mode
	Debug bool

	logger *slog.Logger
}

// Options configures the runtime context. Zero values defer to the
// configuration file.
type Options struct {
	ConfigPath string
	DBPath     string
	InMemory   bool
	ScriptDir  string
	Format     output.Format
	ColorMode  output.ColorMode
	Debug      bool
	// Output receives formatted results. Nil means stdout.
	Output io.Writer
}

// DefaultOptions returns default runtime options.
func DefaultOptions() Options {
	return Options{}
}

// New opens the workspace described by opts and loads its objects, macros and
// history.
func New(ctx context.Context, opts Options) (*Context, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	config.Global = cfg
	initLogging(cfg, opts.Debug)
	logger := logging.Component("runtime")

	formatter, err := newFormatter(cfg, opts)
	if err != nil {
		return nil, err
	}

	storeOpts := storageOptions(cfg, opts)
	db, err := storage.Open(storeOpts)
	if err != nil {
		return nil, err
	}

	status := storage.CheckDatabaseIntegrity(db)
	if status.Corrupted {
		_ = db.Close()
		return nil, errors.NewSystemErrorWithOp("open", "workspace failed its integrity check", errors.ErrDatabaseCorrupted)
	}
	if !storeOpts.InMemory {
		if warning := storage.CheckDiskSpaceWarning(storeOpts.Path); warning != "" {
			logger.Warn(warning, logging.KeyPath, storeOpts.Path)
		}
	}

	objects := object.NewStore()
	manager := command.NewManager(
		command.WithAccessor(objects),
		command.WithResolver(objects),
		command.WithHistoryLimit(cfg.Engine.HistoryLimit),
		command.WithShutdownTimeout(cfg.Engine.ShutdownTimeout),
		command.WithLogger(logging.Component("command")),
	)

	c := &Context{
		Config:      cfg,
		DB:          db,
		Formatter:   formatter,
		Objects:     objects,
		Manager:     manager,
		ObjectRepo:  storage.NewObjectRepo(db),
		MacroRepo:   storage.NewMacroRepo(db),
		HistoryRepo: storage.NewHistoryRepo(db),
		Recovery:    status,
		Debug:       opts.Debug,
		logger:      logger,
	}

	if err := c.register(opts); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.load(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func initLogging(cfg *config.RuntimeConfig, debug bool) {
	if debug {
		logging.InitDebug()
		return
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		JSON:   cfg.Logging.JSON,
		Output: os.Stderr,
	})
}

func newFormatter(cfg *config.RuntimeConfig, opts Options) (*output.Formatter, error) {
	formatter := output.NewFormatter()
	if opts.Output != nil {
		formatter.Writer = opts.Output
	}

	format := opts.Format
	if format == "" {
		f, err := output.ParseFormat(cfg.Output.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}
	colorMode := opts.ColorMode
	if colorMode == "" {
		m, err := output.ParseColorMode(cfg.Output.Color)
		if err != nil {
			return nil, err
		}
		colorMode = m
	}

	formatter.Format = format
	formatter.ColorMode = colorMode
	return formatter, nil
}

// storageOptions resolves the database location: flag, then configuration,
// then the XDG default.
func storageOptions(cfg *config.RuntimeConfig, opts Options) storage.Options {
	path := opts.DBPath
	if path == "" {
		path = cfg.Storage.Path
	}
	inMemory := opts.InMemory || cfg.Storage.InMemory || path == MemoryPath
	if inMemory {
		return storage.Options{InMemory: true}
	}
	if path == "" {
		path = storage.DefaultPath()
	}
	return storage.Options{Path: path}
}

// register installs the object commands and the Lua commands of the script
// directory.
func (c *Context) register(opts Options) error {
	if err := object.Register(c.Manager, c.Objects); err != nil {
		return err
	}

	dir := opts.ScriptDir
	if dir == "" {
		dir = c.Config.Script.Dir
	}
	scripts, err := script.LoadDir(dir, script.Env{
		Accessor: c.Objects,
		Resolver: c.Objects,
		Timeout:  c.Config.Script.Timeout,
	})
	if err != nil {
		return err
	}
	if err := script.Register(c.Manager, scripts); err != nil {
		return err
	}
	c.Scripts = scripts
	if len(scripts) > 0 {
		c.logger.Debug("scripts loaded", logging.KeyPath, dir, logging.KeyCount, len(scripts))
	}
	return nil
}

// load restores objects first, then macros, then the history, since history
// entries may refer to macros.
func (c *Context) load(ctx context.Context) error {
	objs, err := c.ObjectRepo.List()
	if err != nil {
		return err
	}
	c.Objects.Load(objs)

	macros, err := c.MacroRepo.List()
	if err != nil {
		return err
	}
	for _, m := range macros {
		if _, err := c.Manager.LoadMacro(m.Macro); err != nil {
			c.logger.Warn("skipping macro", logging.KeyCommand, m.Macro.Name, logging.KeyError, err)
		}
	}

	h, err := c.HistoryRepo.Get()
	if err != nil {
		return err
	}
	entries := 0
	if h != nil {
		if err := c.Manager.Restore(ctx, h.Snapshot); err != nil {
			return err
		}
		entries = h.Len()
	}

	c.logger.Debug("workspace loaded",
		logging.KeyCount, len(objs),
		"macros", len(macros),
		"history", entries)
	return nil
}

// Save writes objects, macros and the history back to the database.
func (c *Context) Save(ctx context.Context) error {
	if err := c.ObjectRepo.ReplaceAll(c.Objects.Records()); err != nil {
		return WrapDiskFullError(err, "save objects", c.DB.Path())
	}

	macros := c.Manager.Macros()
	records := make([]*model.Macro, 0, len(macros))
	for i, m := range macros {
		stored, err := m.Store()
		if err != nil {
			return err
		}
		records = append(records, model.NewMacro(stored, i))
	}
	if err := c.MacroRepo.ReplaceAll(records); err != nil {
		return WrapDiskFullError(err, "save macros", c.DB.Path())
	}

	snap, err := c.Manager.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := c.HistoryRepo.Save(model.NewHistory(snap)); err != nil {
		return WrapDiskFullError(err, "save history", c.DB.Path())
	}
	return nil
}

// Close stops the command manager and closes the database.
func (c *Context) Close() error {
	var errs []error
	if c.Manager != nil {
		errs = append(errs, c.Manager.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

// CLIFormatter returns a CLI formatter.
func (c *Context) CLIFormatter() *output.CLIFormatter {
	return output.NewCLIFormatter(c.Formatter)
}

// JSONFormatter returns a JSON formatter.
func (c *Context) JSONFormatter() *output.JSONFormatter {
	return output.NewJSONFormatter(c.Formatter)
}

// IsJSON returns true if output format is JSON.
func (c *Context) IsJSON() bool {
	return c.Formatter.IsJSON()
}
