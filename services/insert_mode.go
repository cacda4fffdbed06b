package services

import (
	"os"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/model"
	"github.com/scribeline/meter_api/shared"
	"github.com/scribeline/meter_api/store"
)

// ModeService implements the one-shot "arm for next message" pattern: a
// user arms a formatting mode, and the very next qualifying message
// consumes it. Entries are not evicted proactively; staleness is checked
// lazily at consume time.
type ModeService struct {
	appContext.DefaultService

	ttl time.Duration

	storeSvc *RecordStoreService
	modes    *store.Store

	// in-flight long-running operations, guarded release via End
	guardMu  sync.Mutex
	inFlight map[string]struct{}

	nowFn func() time.Time
}

const MODE_SVC = "mode_svc"

func (svc ModeService) Id() string {
	return MODE_SVC
}

func (svc *ModeService) Configure(ctx *appContext.Context) error {
	svc.ttl = 5 * time.Minute
	if v := os.Getenv("INSERT_MODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			svc.ttl = d
		} else {
			log.WithField("value", v).Warn("Invalid INSERT_MODE_TTL, using default")
		}
	}
	svc.inFlight = make(map[string]struct{})
	svc.nowFn = time.Now

	return svc.DefaultService.Configure(ctx)
}

func (svc *ModeService) Start() error {
	svc.storeSvc = svc.Service(STORE_SVC).(*RecordStoreService)

	modes, err := svc.storeSvc.Store(shared.StoreInsertMode)
	if err != nil {
		return err
	}
	svc.modes = modes
	return nil
}

func (svc *ModeService) TTL() time.Duration {
	return svc.ttl
}

// Arm marks the user's next message for transformation with the given
// style. An existing armed state is overwritten.
func (svc *ModeService) Arm(userID, style string) error {
	flag := model.ModeFlag{Style: style, CreatedAt: svc.nowFn()}
	if err := svc.modes.Set(model.ModeKey(userID), flag); err != nil {
		return err
	}

	modeFlagsTotal.WithLabelValues("armed").Inc()
	return nil
}

// Consume atomically reads and removes the user's flag. A flag older than
// the TTL is discarded and reported as absent; stale is not an error.
func (svc *ModeService) Consume(userID string) (*model.ModeFlag, bool) {
	raw, ok, err := svc.modes.Take(model.ModeKey(userID))
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Failed to consume mode flag")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var flag model.ModeFlag
	if err := store.Decode(raw, &flag); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Corrupt mode flag entry")
		return nil, false
	}

	if svc.nowFn().After(flag.StaleAt(svc.ttl)) {
		modeFlagsTotal.WithLabelValues("stale").Inc()
		log.WithField("user_id", userID).Debug("Discarded stale mode flag")
		return nil, false
	}

	modeFlagsTotal.WithLabelValues("consumed").Inc()
	return &flag, true
}

// TryBegin acquires the processing guard for an operation key, preventing a
// user from triggering a second concurrent long-running command. Returns
// false while the first is still running.
func (svc *ModeService) TryBegin(opKey string) bool {
	svc.guardMu.Lock()
	defer svc.guardMu.Unlock()

	if _, busy := svc.inFlight[opKey]; busy {
		return false
	}
	svc.inFlight[opKey] = struct{}{}
	return true
}

// End releases the processing guard. Callers defer it so the guard is
// released on every exit path, including errors and timeouts.
func (svc *ModeService) End(opKey string) {
	svc.guardMu.Lock()
	defer svc.guardMu.Unlock()
	delete(svc.inFlight, opKey)
}
