package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/utils"
	"github.com/andresmejia3/recallme/internal/worker"
)

var compareOpts Options

var compareCmd = &cobra.Command{
	Use:   "compare <image_a> <image_b>",
	Short: "Compare the faces in two images by cosine distance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCompare(cmd.Context(), args[0], args[1], compareOpts)
	},
}

func init() {
	compareCmd.Flags().Float64VarP(&compareOpts.MatchThreshold, "threshold", "t", defaultMatchThreshold, "Face matching threshold (lower is stricter)")
	compareCmd.Flags().BoolVarP(&compareOpts.Crop, "crop", "c", true, "Detect and embed the largest face instead of the whole image")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(ctx context.Context, a, b string, opts Options) error {
	paths := []string{a, b}
	if err := validateInputs(&opts, paths); err != nil {
		return err
	}
	opts.NumEngines = 2

	pool := &worker.Pool{Size: opts.NumEngines, Crop: opts.Crop}
	if opts.Crop {
		loc, err := newLocalizer(Cfg)
		if err != nil {
			return err
		}
		defer loc.Close()
		pool.Localizer = loc
	}

	results := make([]worker.Result, 0, 2)
	for res := range worker.Ordered(pool.Process(ctx, feedFiles(ctx, paths)), 0) {
		if res.Err != nil {
			utils.ShowError("Failed to embed "+res.Name, res.Err, nil)
			return res.Err
		}
		results = append(results, res)
	}
	if len(results) != 2 {
		return ctx.Err()
	}

	dist := utils.CosineDist(results[0].Vector, results[1].Vector)
	fmt.Printf("Cosine distance: %.4f (similarity %.4f)\n", dist, 1-dist)
	if dist < opts.MatchThreshold {
		fmt.Println("✅ Same person")
	} else {
		fmt.Println("❌ Different people")
	}
	return nil
}
