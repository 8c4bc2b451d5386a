package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tsblank/pkg/emit"
	"tsblank/pkg/fileset"
	"tsblank/pkg/frontend"
	"tsblank/pkg/logging"
	"tsblank/pkg/options"
	"tsblank/pkg/tsconfig"
	"tsblank/pkg/version"
	"tsblank/pkg/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRootCmd builds the base command. Flag defaults come from the
// environment, so .env must be loaded before calling it.
func NewRootCmd(logger *zap.Logger) *cobra.Command {
	logger = logging.OrNop(logger)
	opts := options.Default()
	var noVerify bool

	root := &cobra.Command{
		Use:   "tsblank [flags] [files or globs...]",
		Short: "tsblank erases TypeScript type annotations",
		Long: `tsblank turns TypeScript sources into JavaScript by replacing type syntax with
whitespace, so every runtime token keeps its line and column. It can also write
declaration files and rebuild on change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Paths = args
			opts.Verify = !noVerify

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, opts, "", cmd.OutOrStdout(), debugLogger(logger, opts.Debug))
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "path to tsconfig.json (env "+options.EnvConfig+")")
	flags.StringVarP(&opts.Extension, "extension", "e", opts.Extension, "output extension for .ts files (env "+options.EnvExtension+")")
	flags.BoolVarP(&opts.Watch, "watch", "w", false, "rebuild changed files until interrupted")
	flags.BoolVar(&opts.Init, "init", false, "create or update the config with recommended options, then exit")
	flags.IntVarP(&opts.Jobs, "jobs", "j", opts.Jobs, "maximum number of files processed concurrently")
	flags.BoolVar(&noVerify, "no-verify", false, "skip parsing the output with esbuild before writing")
	flags.BoolVarP(&opts.Quiet, "quiet", "q", false, "do not print written files")
	flags.BoolVar(&opts.Debug, "debug", opts.Debug, "enable debug logging (env "+options.EnvDebug+")")

	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command with os.Args.
func Execute(logger *zap.Logger) error {
	return NewRootCmd(logger).Execute()
}

// debugLogger swaps in a development logger when --debug was given after
// the process logger was built.
func debugLogger(logger *zap.Logger, debug bool) *zap.Logger {
	if !debug || logger.Core().Enabled(zapcore.DebugLevel) {
		return logger
	}
	l, err := logging.New(true, version.AppName, version.Get().Version)
	if err != nil {
		logger.Warn("Failed to enable debug logging", zap.Error(err))
		return logger
	}
	return l
}

// Run performs one invocation. Relative paths resolve against dir; an empty
// dir means the working directory. Written files are listed on stdout.
// Only configuration problems are returned as errors: per-file failures are
// logged and the run still succeeds.
func Run(ctx context.Context, opts options.Options, dir string, stdout io.Writer, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	opts, err := opts.Normalize()
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	configPath := opts.ConfigPath
	if dir != "" && !filepath.IsAbs(configPath) {
		configPath = filepath.Join(dir, configPath)
	}

	if opts.Init {
		if err := tsconfig.Init(configPath, logger); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		logger.Info("Initialized config", zap.String("path", configPath))
		return nil
	}

	project, err := loadProject(configPath, opts.ConfigPath == options.DefaultConfigPath, logger)
	if err != nil {
		return err
	}

	resolver, err := fileset.NewResolver(fileset.Arguments{Dir: dir, Paths: opts.Paths, Project: project}, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare file set: %w", err)
	}
	files, err := resolver.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve input files: %w", err)
	}
	if len(files) == 0 {
		logger.Warn("No input files found")
		if !opts.Watch {
			return nil
		}
	}

	var co tsconfig.CompilerOptions
	rootDir := resolver.Dir()
	if project != nil {
		co = project.CompilerOptions
		rootDir = project.Dir
	}

	program, err := frontend.NewProgram(ctx, files, frontend.Options{CompilerOptions: co, RootDir: rootDir, Jobs: opts.Jobs}, logger)
	if err != nil {
		return fmt.Errorf("failed to build program: %w", err)
	}
	defer program.Close()

	emitter := emit.NewCoordinator(program, emit.Config{
		CompilerOptions: co,
		Extension:       opts.Extension,
		Jobs:            opts.Jobs,
		Verify:          opts.Verify,
		Quiet:           opts.Quiet,
	}, stdout, logger)

	if opts.Watch {
		return watch.New(program, emitter, resolver, watch.DefaultDebounce, logger).Run(ctx, nil)
	}

	summary, err := emitter.Run(ctx)
	if err != nil {
		logger.Warn("Some files were not emitted", zap.Int("failed", summary.Failed))
	}
	logger.Info("Emit complete", zap.Int("files", len(files)), zap.Int("written", summary.Written))
	return ctx.Err()
}

// loadProject loads the config at path. A missing file at the default
// location means no project; anywhere else it is fatal.
func loadProject(path string, isDefault bool, logger *zap.Logger) (*tsconfig.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && isDefault {
		logger.Debug("No config file, using defaults", zap.String("path", path))
		return nil, nil
	}
	project, _, err := tsconfig.Load(path, logger)
	if err != nil {
		logger.Error("Failed to load config", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return project, nil
}
