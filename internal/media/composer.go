// Package media shells out to ffmpeg for artifact decoration: narration
// merge, subtitle burn-in, watermark overlay, music bed mixing, and
// thumbnail extraction. Every operation is bytes in, bytes out; on failure
// the caller still holds the untouched input artifact.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// ComposerOptions configures the ffmpeg wrapper. WatermarkPath and MusicPath
// point at the static overlay image and bed track; operations needing them
// fail cleanly when unset.
type ComposerOptions struct {
	FFmpegBin     string
	WatermarkPath string
	MusicPath     string
	WorkDir       string
	Logger        zerolog.Logger
}

// Composer wraps the external ffmpeg binary. Each operation stages its
// inputs in a scratch directory, runs one ffmpeg invocation with relative
// filenames, and reads the output back.
type Composer struct {
	ffmpeg        string
	watermarkPath string
	musicPath     string
	workDir       string
	logger        zerolog.Logger
}

func NewComposer(opts ComposerOptions) *Composer {
	ffmpeg := strings.TrimSpace(opts.FFmpegBin)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Composer{
		ffmpeg:        ffmpeg,
		watermarkPath: strings.TrimSpace(opts.WatermarkPath),
		musicPath:     strings.TrimSpace(opts.MusicPath),
		workDir:       workDir,
		logger:        opts.Logger.With().Str("component", "media").Logger(),
	}
}

// Ready reports whether the ffmpeg binary resolves. Called once at startup
// so a missing binary is a visible warning, not a per-job surprise.
func (c *Composer) Ready() error {
	if _, err := exec.LookPath(c.ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg binary not found: %w", err)
	}
	return nil
}

// MergeAudio muxes the narration track onto the video, dropping any audio
// the video already carried.
func (c *Composer) MergeAudio(ctx context.Context, video *domain.Artifact, narration *domain.Artifact) (*domain.Artifact, error) {
	return c.compose(ctx, video, "merge audio", func(scratch *scratchDir) ([]string, error) {
		videoFile, err := scratch.stage("input"+extFor(video.MIME), video.Data)
		if err != nil {
			return nil, err
		}
		audioFile, err := scratch.stage("narration"+extFor(narration.MIME), narration.Data)
		if err != nil {
			return nil, err
		}
		return mergeAudioArgs(videoFile, audioFile, scratch.out), nil
	})
}

// BurnSubtitles renders the SRT cues into the video frames.
func (c *Composer) BurnSubtitles(ctx context.Context, video *domain.Artifact, srt string) (*domain.Artifact, error) {
	if strings.TrimSpace(srt) == "" {
		return nil, fmt.Errorf("media: no subtitle cues to burn")
	}
	return c.compose(ctx, video, "burn subtitles", func(scratch *scratchDir) ([]string, error) {
		videoFile, err := scratch.stage("input"+extFor(video.MIME), video.Data)
		if err != nil {
			return nil, err
		}
		srtFile, err := scratch.stage("subs.srt", []byte(srt))
		if err != nil {
			return nil, err
		}
		return subtitleArgs(videoFile, srtFile, scratch.out), nil
	})
}

// Watermark overlays the configured brand image in the bottom-right corner.
func (c *Composer) Watermark(ctx context.Context, video *domain.Artifact) (*domain.Artifact, error) {
	if c.watermarkPath == "" {
		return nil, fmt.Errorf("media: watermark image not configured")
	}
	return c.compose(ctx, video, "watermark", func(scratch *scratchDir) ([]string, error) {
		videoFile, err := scratch.stage("input"+extFor(video.MIME), video.Data)
		if err != nil {
			return nil, err
		}
		return watermarkArgs(videoFile, c.watermarkPath, scratch.out), nil
	})
}

// MixMusic ducks the configured bed track under the existing audio.
func (c *Composer) MixMusic(ctx context.Context, video *domain.Artifact) (*domain.Artifact, error) {
	if c.musicPath == "" {
		return nil, fmt.Errorf("media: music bed track not configured")
	}
	return c.compose(ctx, video, "mix music", func(scratch *scratchDir) ([]string, error) {
		videoFile, err := scratch.stage("input"+extFor(video.MIME), video.Data)
		if err != nil {
			return nil, err
		}
		return musicArgs(videoFile, c.musicPath, scratch.out), nil
	})
}

// Thumbnail extracts a single representative frame as JPEG bytes.
func (c *Composer) Thumbnail(ctx context.Context, video *domain.Artifact) ([]byte, error) {
	scratch, err := newScratchDir(c.workDir, "thumb.jpg")
	if err != nil {
		return nil, err
	}
	defer scratch.cleanup()

	videoFile, err := scratch.stage("input"+extFor(video.MIME), video.Data)
	if err != nil {
		return nil, err
	}
	if err := c.run(ctx, scratch.dir, thumbnailArgs(videoFile, scratch.out)); err != nil {
		return nil, err
	}
	return scratch.readOut()
}

// compose stages inputs, runs one ffmpeg invocation, and returns a new
// artifact carrying the same metadata with the transformed bytes.
func (c *Composer) compose(ctx context.Context, video *domain.Artifact, operation string, build func(*scratchDir) ([]string, error)) (*domain.Artifact, error) {
	scratch, err := newScratchDir(c.workDir, "output"+extFor(video.MIME))
	if err != nil {
		return nil, err
	}
	defer scratch.cleanup()

	args, err := build(scratch)
	if err != nil {
		return nil, err
	}
	if err := c.run(ctx, scratch.dir, args); err != nil {
		return nil, fmt.Errorf("media: %s: %w", operation, err)
	}
	data, err := scratch.readOut()
	if err != nil {
		return nil, fmt.Errorf("media: %s: %w", operation, err)
	}

	out := *video
	out.Data = data
	c.logger.Debug().Str("operation", operation).Int("bytes_in", len(video.Data)).Int("bytes_out", len(data)).Msg("composition finished")
	return &out, nil
}

func (c *Composer) run(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, c.ffmpeg, args...)
	cmd.Dir = dir
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(output.String(), 512))
	}
	return nil
}

// scratchDir is a per-invocation staging area. All files use relative names
// and the command runs with the directory as its working directory, which
// keeps filter arguments free of path escaping.
type scratchDir struct {
	dir string
	out string
}

func newScratchDir(workDir, outName string) (*scratchDir, error) {
	dir, err := os.MkdirTemp(workDir, "compose-")
	if err != nil {
		return nil, fmt.Errorf("media: create scratch dir: %w", err)
	}
	return &scratchDir{dir: dir, out: outName}, nil
}

func (s *scratchDir) stage(name string, data []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("media: stage %s: %w", name, err)
	}
	return name, nil
}

func (s *scratchDir) readOut() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, s.out))
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return data, nil
}

func (s *scratchDir) cleanup() {
	_ = os.RemoveAll(s.dir)
}

func mergeAudioArgs(videoFile, audioFile, outFile string) []string {
	return []string{
		"-y",
		"-i", videoFile,
		"-i", audioFile,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outFile,
	}
}

func subtitleArgs(videoFile, srtFile, outFile string) []string {
	return []string{
		"-y",
		"-i", videoFile,
		"-vf", fmt.Sprintf("subtitles=%s:force_style='FontSize=18,Outline=1'", srtFile),
		"-c:a", "copy",
		outFile,
	}
}

func watermarkArgs(videoFile, watermarkPath, outFile string) []string {
	return []string{
		"-y",
		"-i", videoFile,
		"-i", watermarkPath,
		"-filter_complex", "[1:v]scale=iw*0.18:-1[wm];[0:v][wm]overlay=W-w-24:H-h-24",
		"-c:a", "copy",
		outFile,
	}
}

func musicArgs(videoFile, musicPath, outFile string) []string {
	return []string{
		"-y",
		"-i", videoFile,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", "[1:a]volume=0.18[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=2[aout]",
		"-map", "0:v:0",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outFile,
	}
}

func thumbnailArgs(videoFile, outFile string) []string {
	return []string{
		"-y",
		"-i", videoFile,
		"-ss", "00:00:01",
		"-frames:v", "1",
		"-q:v", "3",
		outFile,
	}
}

// extFor picks a container extension so ffmpeg does not have to guess from
// content alone.
func extFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "video/mp4", "":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/aac":
		return ".aac"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
