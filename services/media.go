package services

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/shared"
)

// MediaService shells out to ffmpeg for audio extraction from uploaded
// recordings. A missing ffmpeg binary is detected at startup and turns
// every extraction into a clear error instead of a cryptic exec failure.
type MediaService struct {
	context.DefaultService

	ffmpegPath string
}

const MEDIA_SVC = "media_svc"

func (svc MediaService) Id() string {
	return MEDIA_SVC
}

func (svc *MediaService) Configure(ctx *context.Context) error {
	svc.ffmpegPath = os.Getenv("FFMPEG_PATH")
	if svc.ffmpegPath == "" {
		svc.ffmpegPath = "ffmpeg"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *MediaService) Start() error {
	if _, err := exec.LookPath(svc.ffmpegPath); err != nil {
		log.WithError(err).Warn("ffmpeg not found, audio extraction disabled")
		svc.ffmpegPath = ""
	}
	return nil
}

func (svc *MediaService) Enabled() bool {
	return svc.ffmpegPath != ""
}

func (svc *MediaService) isValidVideoFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return true
	}
	return false
}

// ExtractAudio pulls the audio track out of a recording into an mp3 next
// to the source file and returns the new path.
func (svc *MediaService) ExtractAudio(videoPath string) (string, error) {
	if svc.ffmpegPath == "" {
		return "", shared.NewInternalError(nil, "Audio extraction is not available")
	}

	if !svc.isValidVideoFile(videoPath) {
		return "", shared.NewBadRequestError(nil, "Invalid video file format. Supported: MP4, MOV, AVI, MKV, WEBM")
	}

	if _, err := os.Stat(videoPath); err != nil {
		return "", shared.NewNotFoundError(err, "Recording not found")
	}

	audioPath := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".mp3"

	cmd := exec.Command(svc.ffmpegPath, "-y", "-i", videoPath, "-vn", "-acodec", "libmp3lame", "-q:a", "2", audioPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.WithError(err).WithField("output", string(output)).Error("ffmpeg extraction failed")
		return "", shared.NewInternalError(fmt.Errorf("ffmpeg: %v", err), "Failed to extract audio from recording")
	}

	log.WithFields(log.Fields{"source": videoPath, "audio": audioPath}).Info("Extracted audio track")
	return audioPath, nil
}
