package dto

type GenerateRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	GuildID     string `json:"guild_id"`
	Filename    string `json:"filename" validate:"required"`
	Content     string `json:"content" validate:"required"`
	Style       string `json:"style" validate:"omitempty,oneof=md prep pas"`
	IncludeTLDR bool   `json:"include_tldr"`
}

type GenerateResponse struct {
	Markdown string `json:"markdown"`
	TempPath string `json:"temp_path,omitempty"`
	Emailed  bool   `json:"emailed"`
}

type ArmInsertRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Style  string `json:"style" validate:"omitempty,oneof=md prep pas"`
}

type InsertMessageRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

type InsertMessageResponse struct {
	Armed    bool   `json:"armed"`
	Markdown string `json:"markdown,omitempty"`
	Emailed  bool   `json:"emailed"`
}

type ResendRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type ExtractAudioRequest struct {
	Path string `json:"path" validate:"required"`
}

type ExtractAudioResponse struct {
	AudioPath string `json:"audio_path"`
}
