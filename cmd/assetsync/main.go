package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/assetsync/internal/config"
	"github.com/openmined/assetsync/internal/download"
	"github.com/openmined/assetsync/internal/progress"
	"github.com/openmined/assetsync/internal/updater"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/openmined/assetsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var rootCmd = &cobra.Command{
	Use:     "assetsync",
	Short:   "Keep a local asset directory in sync with its remote",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		showHeader(cmd.OutOrStdout())

		return runSync(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", config.DefaultDataDir, "Local asset directory")
	rootCmd.Flags().StringP("server", "s", "", "Remote base URL")
	rootCmd.Flags().String("files-path", config.DefaultFilesPath, "Directory under the base URL serving file content")
	rootCmd.Flags().StringP("bootstrap", "b", "", "Zip archive under the base URL used to seed an empty directory")
	rootCmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Concurrent downloads")
	rootCmd.Flags().IntP("timeout", "t", config.DefaultTimeout, "Connect and read timeout in seconds")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "AssetSync config file")
}

func runSync(ctx context.Context, cfg *config.Config, out io.Writer) error {
	receiver, done := newReceiver(out)
	defer done()

	timeout := cfg.HTTPTimeout()
	client := download.NewHTTPClient(
		download.WithConnectTimeout(timeout),
		download.WithReadTimeout(timeout),
	)

	u, err := updater.New(updater.Options{
		BaseURL:          cfg.ServerURL,
		Dir:              cfg.DataDir,
		FilesPath:        cfg.FilesPath,
		BootstrapArchive: cfg.BootstrapArchive,
		Workers:          cfg.Workers,
		Receiver:         receiver,
		HTTPClient:       client,
	})
	if err != nil {
		return err
	}

	res, err := u.Run(ctx)
	if err != nil {
		return err
	}

	done()
	printResult(out, res)
	return nil
}

// newReceiver draws a progress bar on terminals and logs otherwise.
func newReceiver(out io.Writer) (progress.Receiver, func()) {
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		t := progress.NewTerminal(out)
		return t, t.Done
	}
	return progress.NewSlog(slog.Default()), func() {}
}

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	closeLogs, err := setupLogging(config.DefaultLogFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	closeLogs()

	if err != nil {
		os.Exit(1)
	}
}

// setupLogging sends info and above to stdout and everything to the
// truncated log file at path.
func setupLogging(path string) (func(), error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	lines := utils.NewLogInterceptor(file)
	console := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logfile := slog.NewTextHandler(lines, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(console, logfile)))

	return func() {
		lines.Close()
		file.Close()
	}, nil
}

// loadConfig merges flags, ASSETSYNC_* env vars and the config file, in that
// order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flag("config").Changed || os.Getenv(configPathEnv) != "" {
		viper.SetConfigFile(resolveConfigPath(cmd))
	} else {
		for _, p := range configSearchPaths() {
			viper.AddConfigPath(filepath.Dir(p))
		}
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("files_path", cmd.Flags().Lookup("files-path"))
	viper.BindPFlag("bootstrap_archive", cmd.Flags().Lookup("bootstrap"))
	viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	viper.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))

	viper.SetEnvPrefix("ASSETSYNC")
	viper.AutomaticEnv()

	return &config.Config{
		Path:             viper.ConfigFileUsed(),
		DataDir:          viper.GetString("data_dir"),
		ServerURL:        viper.GetString("server_url"),
		FilesPath:        viper.GetString("files_path"),
		BootstrapArchive: viper.GetString("bootstrap_archive"),
		Workers:          viper.GetInt("workers"),
		Timeout:          viper.GetInt("timeout"),
	}, nil
}

func showHeader(out io.Writer) {
	color.New(color.FgHiCyan, color.Bold).Fprintf(out, "%s %s\n", version.AppName, version.Short())
}
