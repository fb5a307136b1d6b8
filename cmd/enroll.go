package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/embedding"
	"github.com/andresmejia3/recallme/internal/store"
	"github.com/andresmejia3/recallme/internal/types"
	"github.com/andresmejia3/recallme/internal/utils"
	"github.com/andresmejia3/recallme/internal/worker"
)

var enrollOpts = Options{MatchThreshold: defaultMatchThreshold}

var enrollCmd = &cobra.Command{
	Use:         "enroll <name> <image>...",
	Short:       "Add photos of a person to the face gallery",
	Args:        cobra.MinimumNArgs(2),
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context(), args[0], args[1:], enrollOpts)
	},
}

func init() {
	enrollCmd.Flags().IntVarP(&enrollOpts.NumEngines, "engines", "e", 4, "Number of parallel extraction workers")
	enrollCmd.Flags().BoolVarP(&enrollOpts.Crop, "crop", "c", true, "Detect and embed the largest face instead of the whole image")
	rootCmd.AddCommand(enrollCmd)
}

// sample is one successfully embedded photo.
type sample struct {
	imageID string
	source  string
	vec     embedding.Vector
}

func runEnroll(ctx context.Context, name string, paths []string, opts Options) error {
	if err := validateInputs(&opts, paths); err != nil {
		return err
	}

	pool := &worker.Pool{Size: opts.NumEngines, Crop: opts.Crop}
	if opts.Crop {
		loc, err := newLocalizer(Cfg)
		if err != nil {
			utils.ShowError("Failed to load face cascade", err, nil)
			return err
		}
		defer loc.Close()
		pool.Localizer = loc
	}

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d extraction workers...\n", opts.NumEngines)
	bar := newBar(len(paths), "🧬 Enrolling "+name)

	// Image IDs are hashed in the feeder so duplicates can be skipped later.
	ids := make([]string, len(paths))
	tasks := make(chan types.FaceTask)
	go func() {
		defer close(tasks)
		for t := range feedFiles(ctx, paths) {
			ids[t.Index] = utils.GenerateImageID(t.Data)
			select {
			case tasks <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	var samples []sample
	for res := range worker.Ordered(pool.Process(ctx, tasks), 0) {
		bar.Add(1)
		if res.Err != nil {
			if errors.Is(res.Err, worker.ErrNoFace) {
				fmt.Fprintf(os.Stderr, "\n⚠️  No face found in %s, skipping\n", res.Name)
			} else {
				fmt.Fprintf(os.Stderr, "\n⚠️  Could not embed %s: %v\n", res.Name, res.Err)
			}
			continue
		}
		samples = append(samples, sample{imageID: ids[res.Index], source: filepath.Base(res.Name), vec: res.Vector})
	}
	bar.Finish()
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(samples) == 0 {
		err := fmt.Errorf("none of %d images produced an embedding", len(paths))
		utils.ShowError("Nothing to enroll", err, nil)
		return err
	}

	id, added, err := enrollSamples(ctx, DB, name, samples)
	if err != nil {
		utils.ShowError("Failed to enroll "+name, err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "\n✅ Enrolled %d new photo(s) of %s (ID: %d), %d already known\n", added, name, id, len(samples)-added)
	return nil
}

// enrollSamples folds samples into the identity called name, creating it if
// needed. Photos already enrolled under that identity do not count twice.
// Everything happens in one transaction, so a failure leaves the gallery
// untouched.
func enrollSamples(ctx context.Context, db *store.Store, name string, samples []sample) (int, int, error) {
	var id, added int
	err := db.InTx(ctx, func(tx *store.Store) error {
		var err error
		id, added, err = enrollTx(ctx, tx, name, samples)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return id, added, nil
}

func enrollTx(ctx context.Context, tx *store.Store, name string, samples []sample) (int, int, error) {
	id, err := identityByName(ctx, tx, name)
	if err != nil {
		return 0, 0, err
	}

	rest := samples
	added := 0
	if id == -1 {
		first := samples[0]
		if id, err = tx.CreateIdentity(ctx, name, first.vec); err != nil {
			return 0, 0, err
		}
		if _, err := tx.AddSample(ctx, id, first.imageID, first.source); err != nil {
			return 0, 0, err
		}
		rest = samples[1:]
		added = 1
	}

	var fresh []embedding.Vector
	for _, s := range rest {
		ok, err := tx.AddSample(ctx, id, s.imageID, s.source)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			fresh = append(fresh, s.vec)
		}
	}
	if len(fresh) > 0 {
		if err := tx.UpdateIdentity(ctx, id, meanVector(fresh), len(fresh)); err != nil {
			return 0, 0, err
		}
	}
	return id, added + len(fresh), nil
}

func identityByName(ctx context.Context, db *store.Store, name string) (int, error) {
	identities, err := db.ListIdentities(ctx)
	if err != nil {
		return 0, err
	}
	for _, ident := range identities {
		if ident.Name == name {
			return ident.ID, nil
		}
	}
	return -1, nil
}

// meanVector averages equally sized vectors.
func meanVector(vecs []embedding.Vector) []float64 {
	mean := make([]float64, embedding.Size)
	for _, v := range vecs {
		for j := range mean {
			if j < len(v) {
				mean[j] += v[j]
			}
		}
	}
	for j := range mean {
		mean[j] /= float64(len(vecs))
	}
	return mean
}
