package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/types"
	"github.com/andresmejia3/recallme/internal/worker"
)

// defaultMatchThreshold is the cosine distance under which two embeddings
// are the same person. Embedding components are non-negative, so distances
// between different faces are already small.
const defaultMatchThreshold = 0.05

var embedOpts = Options{MatchThreshold: defaultMatchThreshold}

var embedCmd = &cobra.Command{
	Use:   "embed <image>...",
	Short: "Print the 256-d face embedding of each image as JSON lines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEmbed(cmd.Context(), args, embedOpts)
	},
}

func init() {
	embedCmd.Flags().IntVarP(&embedOpts.NumEngines, "engines", "e", 4, "Number of parallel extraction workers")
	embedCmd.Flags().BoolVarP(&embedOpts.Crop, "crop", "c", false, "Detect and embed the largest face instead of the whole image")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(ctx context.Context, paths []string, opts Options) error {
	if err := validateInputs(&opts, paths); err != nil {
		return err
	}

	pool := &worker.Pool{Size: opts.NumEngines, Crop: opts.Crop}
	if opts.Crop {
		loc, err := newLocalizer(Cfg)
		if err != nil {
			return err
		}
		defer loc.Close()
		pool.Localizer = loc
	}

	bar := newBar(len(paths), "🧬 Embedding")
	enc := json.NewEncoder(os.Stdout)

	failed := 0
	for res := range worker.Ordered(pool.Process(ctx, feedFiles(ctx, paths)), 0) {
		bar.Add(1)
		out := types.EmbeddingResult{Name: res.Name, Vector: res.Vector}
		if res.Err != nil {
			out.Error = res.Err.Error()
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	bar.Finish()

	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Embedded %d of %d images.\n", len(paths)-failed, len(paths))
	return nil
}

// feedFiles reads each path into a task. Unreadable files become tasks with
// no data, which fail to decode downstream.
func feedFiles(ctx context.Context, paths []string) <-chan types.FaceTask {
	tasks := make(chan types.FaceTask)
	go func() {
		defer close(tasks)
		for i, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				slog.Warn("failed to read image", "path", p, "error", err)
			}
			select {
			case tasks <- types.FaceTask{Index: i, Name: p, Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tasks
}

// newBar returns a stderr progress bar, silent for a single item.
func newBar(total int, description string) *progressbar.ProgressBar {
	if total <= 1 {
		return progressbar.NewOptions(total, progressbar.OptionSetVisibility(false))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
}
