package services

import (
	"github.com/gofiber/fiber/v2"

	"github.com/scribeline/meter_api/dto"
	"github.com/scribeline/meter_api/shared"
)

func (svc *HttpService) parseAndValidate(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	if err := dto.GetValidator().Struct(out); err != nil {
		return shared.NewBadRequestError(nil, "Validation failed").WithData(dto.CreateValidationErrorResponse(err))
	}
	return nil
}

// @Summary Get usage
// @Description Current daily usage for a user. Reading never consumes a call.
// @Tags usage
// @Accept  json
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} shared.Response{data=dto.UsageInfo}
// @Router /api/v1/usage/{userID} [get]
func (svc *HttpService) getUsage(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return shared.ResponseBadRequest(c, "user ID is required")
	}

	info := svc.rateLimitSvc.Usage(userID)
	info.Unlimited = svc.entSvc.IsPaid(userID)

	return shared.ResponseOK(c, info)
}

// @Summary Generate document
// @Description Transforms a transcript into a styled Markdown document
// @Tags generate
// @Accept  json
// @Produce json
// @Param request body dto.GenerateRequest true "Generation request"
// @Success 200 {object} shared.Response{data=dto.GenerateResponse}
// @Failure 429 {object} shared.Response
// @Router /api/v1/generate [post]
func (svc *HttpService) generate(c *fiber.Ctx) error {
	var req dto.GenerateRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	resp, err := svc.scribeSvc.Generate(c.UserContext(), req)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Arm insert mode
// @Description Marks the user's next message as content to rewrite
// @Tags generate
// @Accept  json
// @Produce json
// @Param request body dto.ArmInsertRequest true "Arm request"
// @Success 200 {object} shared.Response
// @Router /api/v1/insert/arm [post]
func (svc *HttpService) armInsert(c *fiber.Ctx) error {
	var req dto.ArmInsertRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	if err := svc.scribeSvc.ArmInsert(req.UserID, req.Style); err != nil {
		return err
	}

	return shared.ResponseOK(c, "armed")
}

// @Summary Process message
// @Description Routes a message through the pipeline when insert mode is armed
// @Tags generate
// @Accept  json
// @Produce json
// @Param request body dto.InsertMessageRequest true "Message"
// @Success 200 {object} shared.Response{data=dto.InsertMessageResponse}
// @Router /api/v1/insert/message [post]
func (svc *HttpService) insertMessage(c *fiber.Ctx) error {
	var req dto.InsertMessageRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	resp, err := svc.scribeSvc.ProcessMessage(c.UserContext(), req)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Extract audio
// @Description Pulls the audio track out of an uploaded recording
// @Tags media
// @Accept  json
// @Produce json
// @Param request body dto.ExtractAudioRequest true "Recording path"
// @Success 200 {object} shared.Response{data=dto.ExtractAudioResponse}
// @Router /api/v1/media/extract_audio [post]
func (svc *HttpService) extractAudio(c *fiber.Ctx) error {
	var req dto.ExtractAudioRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	audioPath, err := svc.mediaSvc.ExtractAudio(req.Path)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.ExtractAudioResponse{AudioPath: audioPath})
}

// @Summary Resend last email
// @Description Sends the user's last generated document again
// @Tags email
// @Accept  json
// @Produce json
// @Param request body dto.ResendRequest true "Resend request"
// @Success 200 {object} shared.Response{data=dto.ResendResult}
// @Router /api/v1/resend [post]
func (svc *HttpService) resend(c *fiber.Ctx) error {
	var req dto.ResendRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	result, err := svc.historySvc.Resend(req.UserID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, result)
}

// @Summary Register email
// @Description Starts verification for a delivery address
// @Tags email
// @Accept  json
// @Produce json
// @Param request body dto.RegisterEmailRequest true "Registration"
// @Success 200 {object} shared.Response
// @Router /api/v1/email/register [post]
func (svc *HttpService) registerEmail(c *fiber.Ctx) error {
	var req dto.RegisterEmailRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := svc.entSvc.RegisterEmail(req.UserID, req.Email); err != nil {
		return err
	}

	return shared.ResponseOK(c, "verification email sent")
}

// @Summary Confirm email
// @Description Confirms a pending delivery address with the mailed token
// @Tags email
// @Accept  json
// @Produce json
// @Param request body dto.ConfirmEmailRequest true "Confirmation"
// @Success 200 {object} shared.Response
// @Router /api/v1/email/confirm [post]
func (svc *HttpService) confirmEmail(c *fiber.Ctx) error {
	var req dto.ConfirmEmailRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	if err := svc.entSvc.ConfirmEmail(req.UserID, req.Token); err != nil {
		return err
	}

	return shared.ResponseOK(c, "email verified")
}

// @Summary Set paid entitlement
// @Tags admin
// @Accept  json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SetPaidRequest true "Entitlement"
// @Success 200 {object} shared.Response{data=dto.EntitlementResponse}
// @Router /api/v1/admin/entitlement/paid [post]
func (svc *HttpService) setPaid(c *fiber.Ctx) error {
	var req dto.SetPaidRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	if err := svc.entSvc.SetPaid(req.UserID, req.Info); err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.EntitlementResponse{
		UserID: req.UserID,
		Paid:   true,
		Info:   svc.entSvc.GetInfo(req.UserID),
	})
}

// @Summary Revoke paid entitlement
// @Tags admin
// @Accept  json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SetFreeRequest true "Entitlement"
// @Success 200 {object} shared.Response{data=dto.EntitlementResponse}
// @Router /api/v1/admin/entitlement/free [post]
func (svc *HttpService) setFree(c *fiber.Ctx) error {
	var req dto.SetFreeRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	if err := svc.entSvc.SetFree(req.UserID); err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.EntitlementResponse{UserID: req.UserID, Paid: false, Info: map[string]interface{}{}})
}

// @Summary Get entitlement
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Success 200 {object} shared.Response{data=dto.EntitlementResponse}
// @Router /api/v1/admin/entitlement/{userID} [get]
func (svc *HttpService) getEntitlement(c *fiber.Ctx) error {
	userID := c.Params("userID")

	return shared.ResponseOK(c, dto.EntitlementResponse{
		UserID: userID,
		Paid:   svc.entSvc.IsPaid(userID),
		Info:   svc.entSvc.GetInfo(userID),
	})
}

// @Summary Get guild plan
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param guildID path string true "Guild ID"
// @Success 200 {object} shared.Response{data=dto.PlanResponse}
// @Router /api/v1/admin/guild/{guildID}/plan [get]
func (svc *HttpService) getGuildPlan(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	return shared.ResponseOK(c, dto.PlanResponse{GuildID: guildID, Plan: svc.entSvc.GetPlan(guildID)})
}

// @Summary Set guild plan
// @Tags admin
// @Accept  json
// @Produce json
// @Security BearerAuth
// @Param guildID path string true "Guild ID"
// @Param request body dto.SetPlanRequest true "Plan"
// @Success 200 {object} shared.Response{data=dto.PlanResponse}
// @Router /api/v1/admin/guild/{guildID}/plan [put]
func (svc *HttpService) setGuildPlan(c *fiber.Ctx) error {
	guildID := c.Params("guildID")

	var req dto.SetPlanRequest
	if err := svc.parseAndValidate(c, &req); err != nil {
		return err
	}

	if err := svc.entSvc.SetPlan(guildID, req.Plan); err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.PlanResponse{GuildID: guildID, Plan: req.Plan})
}

// @Summary Reset usage
// @Description Clears today's usage counter for a user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userID path string true "User ID"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/usage/{userID}/reset [post]
func (svc *HttpService) resetUsage(c *fiber.Ctx) error {
	userID := c.Params("userID")

	if err := svc.rateLimitSvc.Reset(userID); err != nil {
		return err
	}

	return shared.ResponseOK(c, "usage reset")
}

// @Summary Usage stats
// @Description Aggregate quota check counts from the audit trail
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} shared.Response{data=dto.UsageStats}
// @Router /api/v1/admin/usage/stats [get]
func (svc *HttpService) usageStats(c *fiber.Ctx) error {
	var stats dto.UsageStats
	var err error

	if stats.TotalChecks, err = svc.auditSvc.TotalChecks(); err != nil {
		return svc.auditSvc.HandleError(err)
	}
	if stats.DeniedChecks, err = svc.auditSvc.DeniedChecks(); err != nil {
		return svc.auditSvc.HandleError(err)
	}
	if stats.FailOpenChecks, err = svc.auditSvc.FailOpenChecks(); err != nil {
		return svc.auditSvc.HandleError(err)
	}

	return shared.ResponseOK(c, stats)
}
