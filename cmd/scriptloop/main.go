package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/scriptloop/scriptloop/internal/log"
	"github.com/scriptloop/scriptloop/internal/model"
	"github.com/scriptloop/scriptloop/internal/notify"
	"github.com/scriptloop/scriptloop/internal/prompt"
	"github.com/scriptloop/scriptloop/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configName = "scriptloop.yaml"

var (
	userConfigPath string // /default/config/path/scriptloop on given OS
	configPath     string // actual config file used
	config         model.Config
	overrides      *viper.Viper

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagRepeat         int    // value of once --repeat flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "scriptloop")
	overrides = model.NewViper()
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in "+userConfigPath+" or in current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	onceCmd.Flags().IntVar(&flagRepeat, "repeat", 1, "how many times all scripts are executed")
	_ = overrides.BindPFlag(model.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	_ = overrides.BindPFlag(model.KeyRepeat, onceCmd.Flags().Lookup("repeat"))

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initScriptloop

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(scriptsCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("scriptloop failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "scriptloop",
	Short:        "Runs a list of scripts in a loop and relays their output to Telegram",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run executes the scripts according to service.mode of the configuration",
	RunE:  doRun,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "once executes all scripts --repeat times and exits",
	RunE:  doOnce,
}

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "scripts prints the configured scripts in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := config.Tasks()
		if err != nil {
			return err
		}
		for idx, t := range tasks {
			argv0, argv := t.Argv()
			line := fmt.Sprintf("%2d. %-20s %s", idx+1, t.Name, argv0)
			for _, a := range argv {
				line += " " + a
			}
			if t.Timeout > 0 {
				line += fmt.Sprintf(" (timeout %s)", t.Timeout)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a scriptloop",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("scriptloop: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:     %s\n", configPath)
		}
		fmt.Printf("scriptloop: %s\n", info.Main.Version)
		fmt.Printf("go:         %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:     %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:       %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:      %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("scriptloop",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	))

	loop, notifier, err := newLoop(ctx)
	if err != nil {
		return err
	}
	defer closeNotifier(ctx, notifier)

	if config.Service.Mode == model.ServiceModeInteractive {
		p := prompt.New(os.Stdin, os.Stdout)
		defer p.Close()
		return service.NewSession(p, loop, notifier).Do(ctx)
	}

	supervisor, err := service.SupervisorFromConfig(ctx, config.Service, loop, notifier)
	if err != nil {
		return err
	}
	return supervisor.Do(ctx)
}

func doOnce(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("scriptloop",
		slog.String("cmd", "once"),
		slog.Int("pid", os.Getpid()),
	))

	loop, notifier, err := newLoop(ctx)
	if err != nil {
		return err
	}
	defer closeNotifier(ctx, notifier)

	return service.NewSupervisor(loop, notifier, config.Service.Repeat).Do(ctx)
}

func newLoop(ctx context.Context) (*service.Loop, model.Notifier, error) {
	tasks, err := config.Tasks()
	if err != nil {
		return nil, nil, err
	}
	notifier, err := notify.FromConfig(config.Telegram)
	if err != nil {
		return nil, nil, err
	}
	runner := service.NewRunner(notifier).
		WithClassifier(service.Classifier{Keywords: config.Keywords})
	loop, err := service.NewLoop(tasks, runner, notifier)
	if err != nil {
		return nil, nil, err
	}
	slog.DebugContext(ctx, "loop initialized", "scripts", len(tasks), "telegram", config.Telegram.Enabled)
	return loop, notifier, nil
}

func closeNotifier(ctx context.Context, n model.Notifier) {
	closer, ok := n.(model.NotifyCloser)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		slog.ErrorContext(ctx, "closing notifier have failed", "error", err)
	}
}

func initScriptloop(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("SCRIPTLOOPCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig(cmd.Context())
		configPath = filepath.Join(userConfigPath, configName)
		if err := storeConfig(configPath, config); err != nil {
			return err
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.ConfigErrDetails(err) {
				slog.Error("invalid configuration", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// environment and flags have a precedence over config file
	config.Override(overrides)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("validating config %s: %w", configPath, err)
	}

	slog.SetDefault(log.New(os.Stderr, config.Service.Verbose))

	slog.Debug("scriptloop run", "configPath", configPath)
	slog.Debug("scriptloop run", "scripts", len(config.Scripts), "mode", config.Service.Mode)
	return nil
}

func storeConfig(path string, cfg model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	err = enc.Encode(cfg)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("storing configuration: %w", err)
	}
	if err := errors.Join(enc.Close(), f.Close()); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	slog.Info("default configuration stored", "path", path)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
