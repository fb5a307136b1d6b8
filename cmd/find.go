package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/detector"
	"github.com/andresmejia3/recallme/internal/embedding"
	"github.com/andresmejia3/recallme/internal/imagedec"
	"github.com/andresmejia3/recallme/internal/utils"
)

var findOpts Options

var findCmd = &cobra.Command{
	Use:         "find <image_path>",
	Short:       "Search the face gallery for the person in a photo",
	Args:        cobra.ExactArgs(1),
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0], findOpts)
	},
}

func init() {
	findCmd.Flags().Float64VarP(&findOpts.MatchThreshold, "threshold", "t", defaultMatchThreshold, "Face matching threshold (lower is stricter)")
	findCmd.Flags().BoolVarP(&findOpts.Crop, "crop", "c", true, "Detect and embed the largest face instead of the whole image")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string, opts Options) error {
	if err := validateInputs(&opts, []string{imagePath}); err != nil {
		return err
	}

	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}
	img, _, err := imagedec.Decode(imgData)
	if err != nil {
		utils.ShowError("Failed to decode image", err, nil)
		return err
	}

	face := img
	if opts.Crop {
		loc, err := newLocalizer(Cfg)
		if err != nil {
			utils.ShowError("Failed to load face cascade", err, nil)
			return err
		}
		defer loc.Close()

		fmt.Fprintln(os.Stderr, "🔍 Detecting faces...")
		faces := loc.DetectImage(img)
		if len(faces) == 0 {
			fmt.Println("❌ No faces detected in the provided image.")
			return nil
		}
		// Pick largest face if multiple
		if len(faces) > 1 {
			fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
		}
		best, _ := detector.Largest(faces)
		if face = detector.Crop(img, best); face == nil {
			fmt.Println("❌ Detected face lies outside the image.")
			return nil
		}
	}

	vec, err := embedding.Extract(face)
	if err != nil {
		utils.ShowError("Failed to embed face", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Searching database...")
	id, name, err := DB.FindClosestIdentity(ctx, vec, opts.MatchThreshold)
	if err != nil {
		utils.ShowError("Database search failed", err, nil)
		return err
	}

	if id == -1 {
		fmt.Println("❌ No match found in database.")
		return nil
	}

	if name == "" {
		name = fmt.Sprintf("Identity %d", id)
	}
	fmt.Printf("✅ Found Match: %s (ID: %d)\n", name, id)

	samples, err := DB.GetIdentitySamples(ctx, id)
	if err != nil {
		utils.ShowError("Failed to retrieve enrolled photos", err, nil)
		return err
	}

	if len(samples) == 0 {
		fmt.Println("No enrolled photos recorded.")
		return nil
	}

	wOut := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(wOut, "\nPHOTO\tIMAGE ID\tENROLLED")
	fmt.Fprintln(wOut, "-----\t--------\t--------")

	for _, s := range samples {
		fmt.Fprintf(wOut, "%s\t%s\t%s\n",
			s.Source,
			s.ImageID[:min(12, len(s.ImageID))],
			s.EnrolledAt.Local().Format("2006-01-02 15:04"),
		)
	}
	wOut.Flush()

	return nil
}
