package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// TempFileService owns the working directory for generated documents and
// extracted audio. Files are named so the owner and creation time are
// readable from the name alone, and anything past the retention window is
// swept on startup and hourly after that.
type TempFileService struct {
	context.DefaultService

	dir       string
	retention time.Duration

	minioSvc *MinIOService

	sweepTicker *time.Ticker
	done        chan struct{}

	nowFn func() time.Time
}

const TEMP_FILE_SVC = "temp_file_svc"

func (svc TempFileService) Id() string {
	return TEMP_FILE_SVC
}

func (svc *TempFileService) Configure(ctx *context.Context) error {
	svc.dir = os.Getenv("TEMP_FILES_DIR")
	if svc.dir == "" {
		svc.dir = "data/tmp"
	}

	days := 14
	if v := os.Getenv("TEMP_RETENTION_DAYS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid TEMP_RETENTION_DAYS: %s", v)
		}
		days = parsed
	}
	svc.retention = time.Duration(days) * 24 * time.Hour
	svc.nowFn = time.Now
	svc.done = make(chan struct{})

	return svc.DefaultService.Configure(ctx)
}

func (svc *TempFileService) Start() error {
	svc.minioSvc = svc.Service(MINIO_SVC).(*MinIOService)

	if err := os.MkdirAll(svc.dir, 0755); err != nil {
		return fmt.Errorf("failed to create temp dir %s: %v", svc.dir, err)
	}

	svc.Sweep()

	svc.sweepTicker = time.NewTicker(time.Hour)
	go svc.sweepLoop()

	return nil
}

func (svc *TempFileService) Shutdown() {
	if svc.sweepTicker != nil {
		svc.sweepTicker.Stop()
		close(svc.done)
	}
}

func (svc *TempFileService) Dir() string {
	return svc.dir
}

// Save writes content under <user>_<YYYYMMDD_HHMMSS>_<filename> and
// mirrors it to the archive bucket when one is configured.
func (svc *TempFileService) Save(userID, filename string, content []byte) (string, error) {
	name := fmt.Sprintf("%s_%s_%s", userID, svc.nowFn().UTC().Format("20060102_150405"), filepath.Base(filename))
	path := filepath.Join(svc.dir, name)

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %v", err)
	}

	if svc.minioSvc.Enabled() {
		if err := svc.minioSvc.Upload(name, path); err != nil {
			log.WithError(err).WithField("filename", name).Warn("Failed to archive temp file")
		}
	}

	return path, nil
}

func (svc *TempFileService) sweepLoop() {
	for {
		select {
		case <-svc.sweepTicker.C:
			svc.Sweep()
		case <-svc.done:
			return
		}
	}
}

// Sweep removes files older than the retention window. Subdirectories and
// unreadable entries are left alone.
func (svc *TempFileService) Sweep() {
	cutoff := svc.nowFn().Add(-svc.retention)

	entries, err := os.ReadDir(svc.dir)
	if err != nil {
		log.WithError(err).WithField("dir", svc.dir).Warn("Temp file sweep failed to list directory")
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(svc.dir, entry.Name())); err != nil {
			log.WithError(err).WithField("filename", entry.Name()).Warn("Failed to remove expired temp file")
			continue
		}
		removed++
		tempFilesSweptTotal.Inc()
	}

	if removed > 0 {
		log.WithFields(log.Fields{"removed": removed, "dir": svc.dir}).Info("Swept expired temp files")
	}
}
