package shared

const (
	// Locals key set by the admin auth middleware.
	AdminSubject = "admin_subject"

	PlanFree = "free"
	PlanPro  = "pro"

	StyleMarkdown = "md"
	StylePrep     = "prep"
	StylePas      = "pas"

	StoreRateLimit    = "rate_limit.json"
	StoreInsertMode   = "insert_mode.json"
	StoreEmailHistory = "email_history.json"
	StoreEntitlements = "entitlements.json"
	StoreGuildPlans   = "guild_plans.json"
	StoreUserSettings = "user_settings.json"
)
