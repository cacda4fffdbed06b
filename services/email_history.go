package services

import (
	"os"
	"path/filepath"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/dto"
	"github.com/scribeline/meter_api/model"
	"github.com/scribeline/meter_api/shared"
	"github.com/scribeline/meter_api/store"
)

// EmailHistoryService remembers the last document mailed to each user, per
// bot identity, so a lost email can be sent again without regenerating it.
type EmailHistoryService struct {
	context.DefaultService

	storeSvc *RecordStoreService
	emailSvc *EmailService
	minioSvc *MinIOService
	entSvc   *EntitlementService

	history *store.Store
}

const EMAIL_HISTORY_SVC = "email_history_svc"

func (svc EmailHistoryService) Id() string {
	return EMAIL_HISTORY_SVC
}

func (svc *EmailHistoryService) Start() error {
	svc.storeSvc = svc.Service(STORE_SVC).(*RecordStoreService)
	svc.emailSvc = svc.Service(EMAIL_SVC).(*EmailService)
	svc.minioSvc = svc.Service(MINIO_SVC).(*MinIOService)
	svc.entSvc = svc.Service(ENTITLEMENT_SVC).(*EntitlementService)

	var err error
	svc.history, err = svc.storeSvc.Store(shared.StoreEmailHistory)
	return err
}

// Record overwrites the user's last-email entry. Only the newest document
// is kept per user and bot.
func (svc *EmailHistoryService) Record(userID string, rec model.EmailRecord) error {
	return svc.history.Set(model.EmailHistoryKey(userID, svc.entSvc.BotID()), rec)
}

// Last returns the most recent record for the user under this bot identity.
func (svc *EmailHistoryService) Last(userID string) (model.EmailRecord, bool) {
	raw, ok := svc.history.Get(model.EmailHistoryKey(userID, svc.entSvc.BotID()))
	if !ok {
		return model.EmailRecord{}, false
	}

	var rec model.EmailRecord
	if err := store.Decode(raw, &rec); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Corrupt email history record")
		return model.EmailRecord{}, false
	}
	return rec, true
}

// Resend mails the last recorded document again. Attachments whose local
// files have been swept are restored from the archive bucket when
// possible; anything still unreadable is reported in the result rather
// than failing the send.
func (svc *EmailHistoryService) Resend(userID string) (*dto.ResendResult, error) {
	rec, ok := svc.Last(userID)
	if !ok {
		return nil, shared.NewNotFoundError(nil, "No email on record for this user")
	}

	email, ok := svc.entSvc.VerifiedEmail(userID)
	if !ok {
		return nil, shared.NewBadRequestError(nil, "No verified email address for this user")
	}

	result := &dto.ResendResult{Subject: rec.Subject}

	attachments := make([]model.AttachmentRef, 0, len(rec.Attachments))
	for _, att := range rec.Attachments {
		if _, err := os.Stat(att.Path); err != nil {
			if restoreErr := svc.restore(att); restoreErr != nil {
				log.WithError(restoreErr).WithFields(log.Fields{"user_id": userID, "filename": att.Filename}).Warn("Attachment gone and not restorable, resending without it")
				result.Skipped = append(result.Skipped, att.Filename)
				continue
			}
		}
		attachments = append(attachments, att)
	}

	missing, err := svc.emailSvc.SendDocument(email, rec.Subject, rec.Body, attachments)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to resend email")
	}

	result.Sent = true
	result.Attached = len(attachments) - len(missing)
	result.Missing = missing
	return result, nil
}

func (svc *EmailHistoryService) restore(att model.AttachmentRef) error {
	if !svc.minioSvc.Enabled() {
		return os.ErrNotExist
	}

	if err := os.MkdirAll(filepath.Dir(att.Path), 0755); err != nil {
		return err
	}
	return svc.minioSvc.Download(filepath.Base(att.Path), att.Path)
}
