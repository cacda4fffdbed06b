package dto

type SetPaidRequest struct {
	UserID string                 `json:"user_id" validate:"required"`
	Info   map[string]interface{} `json:"info"`
}

type SetFreeRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type EntitlementResponse struct {
	UserID string                 `json:"user_id"`
	Paid   bool                   `json:"paid"`
	Info   map[string]interface{} `json:"info"`
}

type SetPlanRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free pro"`
}

type PlanResponse struct {
	GuildID string `json:"guild_id"`
	Plan    string `json:"plan"`
}
