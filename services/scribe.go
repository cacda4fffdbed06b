package services

import (
	"context"
	"fmt"
	"strings"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/dto"
	"github.com/scribeline/meter_api/model"
	"github.com/scribeline/meter_api/shared"
)

// ScribeService is the command boundary for document generation. It owns
// the order of operations: per-user guard first, quota unless the caller
// has a paid bypass, then transform, local save, delivery and history.
type ScribeService struct {
	appContext.DefaultService

	rateLimitSvc *RateLimitService
	modeSvc      *ModeService
	entSvc       *EntitlementService
	transformSvc *TransformService
	tempFileSvc  *TempFileService
	emailSvc     *EmailService
	historySvc   *EmailHistoryService
}

const SCRIBE_SVC = "scribe_svc"

func (svc ScribeService) Id() string {
	return SCRIBE_SVC
}

func (svc *ScribeService) Start() error {
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.modeSvc = svc.Service(MODE_SVC).(*ModeService)
	svc.entSvc = svc.Service(ENTITLEMENT_SVC).(*EntitlementService)
	svc.transformSvc = svc.Service(TRANSFORM_SVC).(*TransformService)
	svc.tempFileSvc = svc.Service(TEMP_FILE_SVC).(*TempFileService)
	svc.emailSvc = svc.Service(EMAIL_SVC).(*EmailService)
	svc.historySvc = svc.Service(EMAIL_HISTORY_SVC).(*EmailHistoryService)
	return nil
}

// Generate runs the full pipeline for an uploaded transcript. Quota is
// charged only when the user has no paid entitlement and the guild has no
// pro plan, and only after the guard admits the request.
func (svc *ScribeService) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	if !svc.modeSvc.TryBegin(req.UserID) {
		return nil, shared.NewTooManyRequestsError(nil, "A generation is already in progress for this user")
	}
	defer svc.modeSvc.End(req.UserID)

	if !svc.entSvc.HasAccess(req.UserID, req.GuildID) {
		if err := svc.rateLimitSvc.Check(req.UserID); err != nil {
			if shared.IsUsageLimitExceeded(err) {
				return nil, shared.NewTooManyRequestsError(err, err.Error())
			}
			return nil, shared.NewInternalError(err, "Failed to check usage limit")
		}
	}

	style := req.Style
	if style == "" {
		style = shared.StyleMarkdown
	}

	markdown, err := svc.transformSvc.Transform(ctx, style, req.Content, req.IncludeTLDR)
	if err != nil {
		return nil, err
	}

	path, err := svc.tempFileSvc.Save(req.UserID, markdownFilename(req.Filename), []byte(markdown))
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to save generated document")
	}

	emailed := svc.deliver(req.UserID, req.Filename, markdown, path)

	return &dto.GenerateResponse{
		Markdown: markdown,
		TempPath: path,
		Emailed:  emailed,
	}, nil
}

// ArmInsert puts the user into insert mode so their next message is
// rewritten instead of being treated as a command.
func (svc *ScribeService) ArmInsert(userID, style string) error {
	if style == "" {
		style = shared.StyleMarkdown
	}

	switch style {
	case shared.StyleMarkdown, shared.StylePrep, shared.StylePas:
	default:
		return shared.NewBadRequestError(nil, fmt.Sprintf("unknown style: %s", style))
	}

	return svc.modeSvc.Arm(userID, style)
}

// ProcessMessage handles an incoming message. A fresh insert-mode flag
// consumes it and routes the text through the pipeline; otherwise the
// message is left alone.
func (svc *ScribeService) ProcessMessage(ctx context.Context, req dto.InsertMessageRequest) (*dto.InsertMessageResponse, error) {
	flag, ok := svc.modeSvc.Consume(req.UserID)
	if !ok {
		return &dto.InsertMessageResponse{Armed: false}, nil
	}

	if !svc.modeSvc.TryBegin(req.UserID) {
		// Give the flag back so the user does not have to re-arm after
		// the in-flight generation finishes.
		if err := svc.modeSvc.Arm(req.UserID, flag.Style); err != nil {
			log.WithError(err).WithField("user_id", req.UserID).Warn("Failed to restore insert mode flag")
		}
		return nil, shared.NewTooManyRequestsError(nil, "A generation is already in progress for this user")
	}
	defer svc.modeSvc.End(req.UserID)

	if !svc.entSvc.HasAccess(req.UserID, "") {
		if err := svc.rateLimitSvc.Check(req.UserID); err != nil {
			if shared.IsUsageLimitExceeded(err) {
				return nil, shared.NewTooManyRequestsError(err, err.Error())
			}
			return nil, shared.NewInternalError(err, "Failed to check usage limit")
		}
	}

	markdown, err := svc.transformSvc.Transform(ctx, flag.Style, req.Text, false)
	if err != nil {
		return nil, err
	}

	path, err := svc.tempFileSvc.Save(req.UserID, "inserted_note.md", []byte(markdown))
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to save generated document")
	}

	emailed := svc.deliver(req.UserID, "inserted_note.md", markdown, path)

	return &dto.InsertMessageResponse{
		Armed:    true,
		Markdown: markdown,
		Emailed:  emailed,
	}, nil
}

// deliver mails the document to the user's verified address when one
// exists and records it as the last email either way. Delivery problems
// never fail the generation; the document already exists on disk.
func (svc *ScribeService) deliver(userID, filename, markdown, path string) bool {
	rec := model.EmailRecord{
		Subject: fmt.Sprintf("Your document: %s", markdownFilename(filename)),
		Body:    "Your generated document is attached.",
		Attachments: []model.AttachmentRef{
			{Filename: markdownFilename(filename), Path: path, MimeType: "text/markdown"},
		},
	}

	if err := svc.historySvc.Record(userID, rec); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Failed to record email history")
	}

	email, ok := svc.entSvc.VerifiedEmail(userID)
	if !ok {
		return false
	}

	missing, err := svc.emailSvc.SendDocument(email, rec.Subject, rec.Body, rec.Attachments)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Failed to email generated document")
		return false
	}
	if len(missing) > 0 {
		log.WithFields(log.Fields{"user_id": userID, "missing": missing}).Warn("Document emailed without some attachments")
	}
	return svc.emailSvc.Configured()
}

func markdownFilename(filename string) string {
	if filename == "" {
		return "document.md"
	}

	ext := strings.LastIndex(filename, ".")
	if ext > 0 {
		filename = filename[:ext]
	}
	return filename + ".md"
}
