package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr
// This ensures we don't lose crash information if a child process dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// --- 2. Error Reporting ---

var (
	errorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 1)
	errorTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// FormatError renders the error box printed by ShowError.
func FormatError(context string, err error, s *SafeCommand) string {
	var b strings.Builder
	b.WriteString(errorTitle.Render("🚨 RECALLME ERROR: " + context))
	if err != nil {
		fmt.Fprintf(&b, "\nDETAILS: %v", err)
	}
	// If we have a SafeCommand and it captured logs, include them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(&b, "\n\nCHILD PROCESS LOGS:\n%s", strings.TrimRight(s.Stderr.String(), "\n"))
	}
	return errorBox.Render(b.String())
}

// ShowError prints a formatted error box to stderr without exiting.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintln(os.Stderr, FormatError(context, err, s))
}

// Die is the unified exit strategy for commands that cannot return an error.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 3. Image Stream Helpers ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract
// full JPEG frames from an MJPEG stream (e.g. a camera piped to stdin).
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// GenerateImageID creates a deterministic hash of the image bytes.
// Re-enrolling the same file yields the same ID.
func GenerateImageID(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// --- 4. Vector Math ---

// CosineDist returns 1 - cos(a, b). Zero or empty vectors are treated as
// maximally unrelated (1.0).
func CosineDist(a, b []float64) float64 {
	var dot, sumA, sumB float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += a[i] * b[i]
		sumA += a[i] * a[i]
		sumB += b[i] * b[i]
	}
	// Return 1.0 (max distance) if a vector is zero to avoid division by zero
	if sumA == 0 || sumB == 0 {
		return 1.0
	}
	return 1.0 - (dot / (math.Sqrt(sumA) * math.Sqrt(sumB)))
}
