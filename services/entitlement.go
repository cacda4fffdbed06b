package services

import (
	"fmt"
	"os"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/scribeline/meter_api/model"
	"github.com/scribeline/meter_api/shared"
	"github.com/scribeline/meter_api/store"
)

// EntitlementService tracks who is on the paid plan, which guilds bought
// the pro plan, and each user's verified delivery address. Absence always
// means the free default; records never expire.
type EntitlementService struct {
	appContext.DefaultService

	botID string

	storeSvc *RecordStoreService
	emailSvc *EmailService

	entitlements *store.Store
	guildPlans   *store.Store
	settings     *store.Store
}

const ENTITLEMENT_SVC = "entitlement_svc"

func (svc EntitlementService) Id() string {
	return ENTITLEMENT_SVC
}

func (svc *EntitlementService) Configure(ctx *appContext.Context) error {
	svc.botID = os.Getenv("BOT_ID")
	if svc.botID == "" {
		svc.botID = "default_bot"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *EntitlementService) Start() error {
	svc.storeSvc = svc.Service(STORE_SVC).(*RecordStoreService)
	svc.emailSvc = svc.Service(EMAIL_SVC).(*EmailService)

	var err error
	if svc.entitlements, err = svc.storeSvc.Store(shared.StoreEntitlements); err != nil {
		return err
	}
	if svc.guildPlans, err = svc.storeSvc.Store(shared.StoreGuildPlans); err != nil {
		return err
	}
	if svc.settings, err = svc.storeSvc.Store(shared.StoreUserSettings); err != nil {
		return err
	}
	return nil
}

func (svc *EntitlementService) BotID() string {
	return svc.botID
}

// ==================== PAID / FREE ====================

func (svc *EntitlementService) SetPaid(userID string, info map[string]interface{}) error {
	if info == nil {
		info = map[string]interface{}{}
	}
	return svc.entitlements.Set(userID, model.Entitlement{Paid: true, Info: info})
}

func (svc *EntitlementService) SetFree(userID string) error {
	return svc.entitlements.Set(userID, model.Entitlement{Paid: false, Info: map[string]interface{}{}})
}

func (svc *EntitlementService) IsPaid(userID string) bool {
	ent, ok := svc.entitlement(userID)
	return ok && ent.Paid
}

func (svc *EntitlementService) GetInfo(userID string) map[string]interface{} {
	ent, ok := svc.entitlement(userID)
	if !ok || ent.Info == nil {
		return map[string]interface{}{}
	}
	return ent.Info
}

func (svc *EntitlementService) entitlement(userID string) (model.Entitlement, bool) {
	raw, ok := svc.entitlements.Get(userID)
	if !ok {
		return model.Entitlement{}, false
	}

	var ent model.Entitlement
	if err := store.Decode(raw, &ent); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Corrupt entitlement record")
		return model.Entitlement{}, false
	}
	return ent, true
}

// ==================== GUILD PLANS ====================

// GetPlan returns the guild's plan; unknown guilds are free.
func (svc *EntitlementService) GetPlan(guildID string) string {
	raw, ok := svc.guildPlans.Get(guildID)
	if !ok {
		return shared.PlanFree
	}

	plan, ok := raw.(string)
	if !ok || (plan != shared.PlanFree && plan != shared.PlanPro) {
		return shared.PlanFree
	}
	return plan
}

func (svc *EntitlementService) SetPlan(guildID, plan string) error {
	if plan != shared.PlanFree && plan != shared.PlanPro {
		return shared.NewBadRequestError(nil, fmt.Sprintf("unknown plan: %s", plan))
	}
	return svc.guildPlans.Set(guildID, plan)
}

// HasAccess grants a gated feature if either the personal entitlement or
// the guild plan qualifies.
func (svc *EntitlementService) HasAccess(userID, guildID string) bool {
	if svc.IsPaid(userID) {
		return true
	}
	return guildID != "" && svc.GetPlan(guildID) == shared.PlanPro
}

// ==================== EMAIL VERIFICATION ====================

// RegisterEmail starts verification for a delivery address. The returned
// token is mailed to the address and only its bcrypt hash is kept at rest.
func (svc *EntitlementService) RegisterEmail(userID, email string) (string, error) {
	token := uuid.NewString()

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", shared.NewInternalError(err, "Failed to hash verification token")
	}

	settings := svc.userSettings(userID)
	settings.PendingEmail = email
	settings.PendingBotID = svc.botID
	settings.PendingTokenHash = string(hash)

	if err := svc.settings.Set(userID, settings); err != nil {
		return "", err
	}

	if err := svc.emailSvc.SendVerificationEmail(email, userID, token); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Failed to send verification email")
	}

	return token, nil
}

// ConfirmEmail promotes the pending address to verified when the token
// matches.
func (svc *EntitlementService) ConfirmEmail(userID, token string) error {
	settings := svc.userSettings(userID)
	if settings.PendingTokenHash == "" {
		return shared.NewNotFoundError(nil, "No pending email verification")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(settings.PendingTokenHash), []byte(token)); err != nil {
		return shared.NewUnauthorizedError(err, "Invalid verification token")
	}

	if settings.Verified == nil {
		settings.Verified = map[string]string{}
	}
	settings.Verified[settings.PendingBotID] = settings.PendingEmail
	settings.PendingEmail = ""
	settings.PendingBotID = ""
	settings.PendingTokenHash = ""

	return svc.settings.Set(userID, settings)
}

// VerifiedEmail returns the user's confirmed address for this bot identity.
func (svc *EntitlementService) VerifiedEmail(userID string) (string, bool) {
	settings := svc.userSettings(userID)
	email, ok := settings.Verified[svc.botID]
	return email, ok && email != ""
}

func (svc *EntitlementService) userSettings(userID string) model.UserSettings {
	raw, ok := svc.settings.Get(userID)
	if !ok {
		return model.UserSettings{Verified: map[string]string{}}
	}

	var settings model.UserSettings
	if err := store.Decode(raw, &settings); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Corrupt user settings record")
		return model.UserSettings{Verified: map[string]string{}}
	}
	if settings.Verified == nil {
		settings.Verified = map[string]string{}
	}
	return settings
}
