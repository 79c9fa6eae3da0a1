package save

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GeneratePreview shells out to ffmpeg to produce a short, muted, scaled
// preview clip for videoPath under previewsDir, named after the clip's file
// stem. It is a no-op if a preview with that name already exists. Grounded
// on the original daemon's generate_preview_clip: this is the invocation
// contract only, not a reimplementation of thumbnail rendering, which stays
// an external collaborator.
func GeneratePreview(previewsDir string) PreviewGenerator {
	return func(ctx context.Context, videoPath string) error {
		stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
		previewPath := filepath.Join(previewsDir, stem+".mp4")

		if _, err := os.Stat(previewPath); err == nil {
			return nil
		}

		if err := os.MkdirAll(previewsDir, 0o755); err != nil {
			return fmt.Errorf("create preview cache directory: %w", err)
		}

		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-i", videoPath,
			"-t", "3",
			"-an",
			"-vf", "scale=480:-2",
			"-y",
			previewPath,
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("ffmpeg preview generation failed: %w: %s", err, string(out))
		}
		return nil
	}
}
