package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/config"
	"github.com/andresmejia3/recallme/internal/detector"
	"github.com/andresmejia3/recallme/internal/store"
	"github.com/andresmejia3/recallme/internal/utils"
)

// Options holds shared settings for the batch face commands
type Options struct {
	NumEngines     int
	MatchThreshold float64
	Crop           bool
	MJPEG          bool
}

// needsDB marks commands that open the gallery in PersistentPreRunE.
const needsDB = "needs-db"

var dbAnnotation = map[string]string{needsDB: "true"}

var (
	// DB is the global database connection shared by gallery subcommands
	DB *store.Store
	// Cfg is the loaded configuration
	Cfg *config.Config

	configPath string
	dbURL      string
	verbose    bool
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "recallme",
	Short:   "On-device speech and face bridge for the RecallMe assistant",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// --db wins over the file and the environment
		if dbURL != "" {
			cfg.DB = dbURL
		}
		Cfg = cfg

		level, _ := config.ParseLevel(cfg.LogLevel)
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if cmd.Annotations[needsDB] != "true" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeDB()
	},
}

// closeDB runs after the command has already reported its result, so a
// failure here can only exit.
func closeDB() {
	if DB == nil {
		return
	}
	// Use Background here because the main context might be cancelled already (due to Ctrl+C)
	// and we still need to send the "Close" command to the DB.
	err := DB.Close(context.Background())
	DB = nil
	if err != nil {
		utils.Die("Failed to close database", err, nil)
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.recallme/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/recallme)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// newLocalizer builds the face localizer from the face config section. With
// no cascade configured every detection comes back empty.
func newLocalizer(cfg *config.Config) (detector.Localizer, error) {
	if cfg.Face.CascadePath == "" {
		slog.Warn("no face cascade configured (face.cascade_path); face detection disabled")
		return detector.Nop{}, nil
	}
	loc, err := detector.LoadPigo(cfg.Face.CascadePath, cfg.DetectorOptions())
	if err != nil {
		return nil, err
	}
	slog.Debug("face cascade loaded", "path", cfg.Face.CascadePath)
	return loc, nil
}

// validateInputs checks the input files and normalizes opts before heavy work starts.
func validateInputs(opts *Options, paths []string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input file does not exist", err, nil)
				return err
			}
			utils.ShowError("Unable to access input file", err, nil)
			return err
		}
		if info.IsDir() {
			err := fmt.Errorf("%s is a directory, expected an image file", p)
			utils.ShowError("Invalid input path", err, nil)
			return err
		}
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.MatchThreshold <= 0 || opts.MatchThreshold > 1.0 {
		err := fmt.Errorf("must be between 0.0 and 1.0, got %f", opts.MatchThreshold)
		utils.ShowError("Invalid match threshold", err, nil)
		return err
	}
	return nil
}
