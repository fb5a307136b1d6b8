package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/bridge"
	"github.com/andresmejia3/recallme/internal/speech"
	"github.com/andresmejia3/recallme/internal/utils"
)

var (
	serveListen string
	serveStdio  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tts, stt and face channels to a UI host",
	Long: `Serve the bridge channels over WebSocket (binary msgpack envelopes on /channels)
or, with --stdio, as length-prefixed frames on stdin/stdout for a host that runs
recallme as a child process.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		loc, err := newLocalizer(Cfg)
		if err != nil {
			utils.ShowError("Failed to load face cascade", err, nil)
			return err
		}
		defer loc.Close()

		tts := speech.NewTTS(speech.NewExecEngine(Cfg.TTS.Command), Cfg.TTSConfig())
		defer tts.Shutdown()
		// Warm the engine up so the host's first initialize is quick.
		tts.Start(ctx)

		h := &bridge.Handler{
			TTS:       tts,
			STT:       speech.NewSTT(),
			Localizer: loc,
		}

		if serveStdio {
			fmt.Fprintln(os.Stderr, "🔌 Serving channels on stdio")
			return bridge.ServeStdio(ctx, os.Stdin, os.Stdout, h)
		}

		addr := serveListen
		if addr == "" {
			addr = Cfg.Listen
		}
		fmt.Fprintf(os.Stderr, "🔌 Serving channels on ws://%s%s\n", addr, bridge.Path)
		if err := bridge.NewServer(h).ListenAndServe(ctx, addr); err != nil {
			utils.ShowError("Bridge server failed", err, nil)
			return err
		}
		slog.Info("bridge stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "WebSocket listen address (default from config: 127.0.0.1:8765)")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Serve length-prefixed frames on stdin/stdout instead of WebSocket")
	rootCmd.AddCommand(serveCmd)
}
