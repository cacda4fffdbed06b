package services

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/store"
)

// RecordStoreService owns the store registry for the data directory. Every
// durable namespace (rate limits, mode flags, entitlements, email history)
// is a named store under DATA_DIR; higher-level services never touch the
// backing files directly.
type RecordStoreService struct {
	context.DefaultService

	dataDir  string
	registry *store.Registry
	lockFile *os.File
}

const STORE_SVC = "record_store_svc"

func (svc RecordStoreService) Id() string {
	return STORE_SVC
}

func (svc *RecordStoreService) Configure(ctx *context.Context) error {
	svc.dataDir = os.Getenv("DATA_DIR")
	if svc.dataDir == "" {
		svc.dataDir = "data/cache"
	}
	svc.registry = store.NewRegistry()

	return svc.DefaultService.Configure(ctx)
}

func (svc *RecordStoreService) Start() error {
	if err := os.MkdirAll(svc.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// Two daemons sharing one data dir would bypass the per-path single
	// writer guarantee; fail fast instead.
	if err := svc.acquireLock(); err != nil {
		return err
	}

	log.WithField("data_dir", svc.dataDir).Info("Record store ready")
	return nil
}

func (svc *RecordStoreService) Shutdown() {
	if svc.lockFile != nil {
		_ = syscall.Flock(int(svc.lockFile.Fd()), syscall.LOCK_UN)
		_ = svc.lockFile.Close()
		_ = os.Remove(svc.lockFile.Name())
	}
}

// Store opens (or returns the already-open singleton for) a named store
// inside the data directory.
func (svc *RecordStoreService) Store(name string) (*store.Store, error) {
	return svc.registry.Open(filepath.Join(svc.dataDir, name))
}

func (svc *RecordStoreService) acquireLock() error {
	lockPath := filepath.Join(svc.dataDir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("another instance already owns %s: %w", svc.dataDir, err)
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	svc.lockFile = f
	return nil
}
