package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/types"
	"github.com/andresmejia3/recallme/internal/utils"
	"github.com/andresmejia3/recallme/internal/worker"
)

const megabyte = 1024 * 1024

var detectOpts = Options{MatchThreshold: defaultMatchThreshold}

// detection is one line of detect output.
type detection struct {
	Name  string          `json:"name"`
	Faces []types.FaceBox `json:"faces"`
	Error string          `json:"error,omitempty"`
}

var detectCmd = &cobra.Command{
	Use:   "detect [image]...",
	Short: "Print face bounding boxes for each image as JSON lines",
	Long: `Print face bounding boxes for each image as JSON lines.

With --mjpeg, frames are read from an MJPEG stream on stdin instead, e.g.
  ffmpeg -i /dev/video0 -f mjpeg - | recallme detect --mjpeg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if detectOpts.MJPEG == (len(args) > 0) {
			return fmt.Errorf("pass image paths or --mjpeg, not both")
		}
		return runDetect(cmd.Context(), args, os.Stdin, os.Stdout, detectOpts)
	},
}

func init() {
	detectCmd.Flags().IntVarP(&detectOpts.NumEngines, "engines", "e", 2, "Number of parallel detection workers")
	detectCmd.Flags().BoolVar(&detectOpts.MJPEG, "mjpeg", false, "Read an MJPEG stream from stdin")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(ctx context.Context, paths []string, in io.Reader, out io.Writer, opts Options) error {
	if err := validateInputs(&opts, paths); err != nil {
		return err
	}

	loc, err := newLocalizer(Cfg)
	if err != nil {
		utils.ShowError("Failed to load face cascade", err, nil)
		return err
	}
	defer loc.Close()

	pool := &worker.Pool{Size: opts.NumEngines, Localizer: loc, DetectOnly: true}

	var tasks <-chan types.FaceTask
	scanErr := make(chan error, 1)
	if opts.MJPEG {
		pool.Pooled = true
		tasks = feedFrames(ctx, in, scanErr)
	} else {
		tasks = feedFiles(ctx, paths)
		close(scanErr)
	}

	enc := json.NewEncoder(out)
	frames, faces := 0, 0
	for res := range worker.Ordered(pool.Process(ctx, tasks), 0) {
		frames++
		d := detection{Name: res.Name, Faces: res.Faces}
		if d.Faces == nil {
			d.Faces = []types.FaceBox{}
		}
		if res.Err != nil {
			d.Error = res.Err.Error()
		}
		faces += len(d.Faces)
		if err := enc.Encode(d); err != nil {
			return err
		}
	}

	// Check for scanner errors (e.g. token too long)
	if err := <-scanErr; err != nil {
		utils.ShowError("Frame scanner failed", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "👁️  %d faces in %d images\n", faces, frames)
	return nil
}

// feedFrames splits an MJPEG stream into tasks named frame-<n>. The scan
// error, if any, is delivered on errc once the stream ends.
func feedFrames(ctx context.Context, in io.Reader, errc chan<- error) <-chan types.FaceTask {
	tasks := make(chan types.FaceTask)
	go func() {
		defer close(errc)
		defer close(tasks)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, megabyte), 64*megabyte)
		scanner.Split(utils.SplitJpeg)

		n := 0
		for scanner.Scan() {
			task := types.FaceTask{Index: n, Name: fmt.Sprintf("frame-%d", n), Data: worker.GetBuffer(scanner.Bytes())}
			select {
			case tasks <- task:
			case <-ctx.Done():
				return
			}
			n++
		}
		if err := scanner.Err(); err != nil {
			errc <- err
		}
	}()
	return tasks
}
