package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// videoIDPatterns cover watch, short-link, embed and shorts URL shapes.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/v/|youtu\.be/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`(?:shorts/)([a-zA-Z0-9_-]{11})`),
}

// ExtractVideoID pulls the 11-character video ID out of a YouTube URL.
func ExtractVideoID(url string) (string, error) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("could not extract video ID from URL: %s", url)
}

// Acquirer downloads source media and decodes it to 16kHz mono PCM16 WAV.
// It shells out to yt-dlp and ffmpeg; both must be on PATH. Acquisition
// failures are fatal to a pipeline run.
type Acquirer struct {
	log zerolog.Logger
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(log zerolog.Logger) *Acquirer {
	return &Acquirer{log: log.With().Str("component", "acquirer").Logger()}
}

// Fetch downloads the audio track of videoURL into dir and converts it to
// 16kHz mono WAV. Returns the path of the converted file.
func (a *Acquirer) Fetch(ctx context.Context, videoURL, dir string) (string, error) {
	videoID, err := ExtractVideoID(videoURL)
	if err != nil {
		return "", err
	}

	a.log.Info().Str("url", videoURL).Str("video_id", videoID).Msg("downloading audio")

	var stderr bytes.Buffer
	dl := exec.CommandContext(ctx, "yt-dlp",
		"-f", "bestaudio/best",
		"-x", "--audio-format", "wav",
		"--audio-quality", "0",
		"-o", filepath.Join(dir, videoID+".%(ext)s"),
		"--no-warnings", "-q",
		videoURL,
	)
	dl.Stderr = &stderr
	if err := dl.Run(); err != nil {
		return "", classifyDownloadError(videoURL, stderr.String(), err)
	}

	src := filepath.Join(dir, videoID+".wav")
	if _, err := os.Stat(src); err != nil {
		// yt-dlp may have kept the container extension.
		found := ""
		for _, ext := range []string{"wav", "webm", "m4a", "mp3", "opus"} {
			candidate := filepath.Join(dir, videoID+"."+ext)
			if _, err := os.Stat(candidate); err == nil {
				found = candidate
				break
			}
		}
		if found == "" {
			return "", fmt.Errorf("downloaded file not found in %s", dir)
		}
		src = found
	}

	return a.Convert(ctx, src, filepath.Join(dir, videoID+"_16k.wav"))
}

// Convert transcodes any ffmpeg-readable file to 16kHz mono PCM16 WAV at
// dst, removing src when the paths differ.
func (a *Acquirer) Convert(ctx context.Context, src, dst string) (string, error) {
	a.log.Debug().Str("src", src).Msg("converting to 16kHz mono WAV")

	var stderr bytes.Buffer
	conv := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", src,
		"-ac", "1", "-ar", "16000",
		"-sample_fmt", "s16",
		"-f", "wav",
		dst,
	)
	conv.Stderr = &stderr
	if err := conv.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg convert %s: %w: %s", src, err, strings.TrimSpace(stderr.String()))
	}

	if src != dst {
		os.Remove(src)
	}
	return dst, nil
}

// classifyDownloadError maps yt-dlp stderr output to a descriptive error.
func classifyDownloadError(url, stderr string, err error) error {
	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "private"):
		return fmt.Errorf("video is private: %s", url)
	case strings.Contains(msg, "age"):
		return fmt.Errorf("video is age-restricted: %s", url)
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "not available"):
		return fmt.Errorf("video is unavailable: %s", url)
	default:
		return fmt.Errorf("download failed for %s: %w: %s", url, err, strings.TrimSpace(stderr))
	}
}
