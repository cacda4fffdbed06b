package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/model"
)

// EmailService delivers generated documents and verification mail over
// SMTP. When SMTP_HOST is unset every send degrades to a warn log so the
// rest of the pipeline keeps working in local setups.
type EmailService struct {
	context.DefaultService

	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string
	baseURL      string

	templates map[string]*template.Template

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

const EMAIL_SVC = "email_svc"

func (svc EmailService) Id() string {
	return EMAIL_SVC
}

func (svc *EmailService) Configure(ctx *context.Context) error {
	svc.smtpHost = os.Getenv("SMTP_HOST")
	svc.smtpPort = os.Getenv("SMTP_PORT")
	svc.smtpUsername = os.Getenv("SMTP_USERNAME")
	svc.smtpPassword = os.Getenv("SMTP_PASSWORD")
	svc.fromEmail = os.Getenv("FROM_EMAIL")
	svc.fromName = os.Getenv("FROM_NAME")
	svc.baseURL = os.Getenv("BASE_URL")

	// Set defaults if not provided
	if svc.smtpPort == "" {
		svc.smtpPort = "587"
	}
	if svc.fromName == "" {
		svc.fromName = "Scribeline"
	}
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:8000"
	}

	svc.templates = make(map[string]*template.Template)
	svc.sendMail = smtp.SendMail

	return svc.DefaultService.Configure(ctx)
}

func (svc *EmailService) Start() error {
	err := svc.loadTemplates()
	if err != nil {
		log.WithError(err).Error("Failed to load email templates")
		// Don't fail startup, just log the error
	}

	return nil
}

func (svc *EmailService) Configured() bool {
	return svc.smtpHost != ""
}

const verificationEmailHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify Your Email - {{.AppName}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4F46E5; color: white; padding: 20px; text-align: center; }
        .content { padding: 20px; background-color: #f9f9f9; }
        .token { display: inline-block; padding: 12px 24px; background-color: #EEF2FF; border: 1px solid #4F46E5; border-radius: 5px; margin: 20px 0; font-family: monospace; font-size: 16px; }
        .footer { padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Confirm your delivery address</h1>
        </div>
        <div class="content">
            <h2>Hi {{.UserID}},</h2>
            <p>This address was registered to receive documents from {{.AppName}}. To confirm it, reply to the bot with this token:</p>
            <div class="token">{{.Token}}</div>
            <p>You can also confirm directly:</p>
            <p><a href="{{.ConfirmURL}}">{{.ConfirmURL}}</a></p>
            <p>If you didn't register this address, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>&copy; 2026 {{.AppName}}. All rights reserved.</p>
        </div>
    </div>
</body>
</html>
`

type VerificationEmailData struct {
	AppName    string
	UserID     string
	Token      string
	ConfirmURL string
}

func (svc *EmailService) loadTemplates() error {
	var err error

	svc.templates["verification"], err = template.New("verification").Parse(verificationEmailHTML)
	if err != nil {
		return fmt.Errorf("failed to parse verification email template: %v", err)
	}

	return nil
}

// Send verification email
func (svc *EmailService) SendVerificationEmail(email, userID, token string) error {
	if svc.smtpHost == "" {
		log.Warn("SMTP not configured, skipping verification email")
		return nil
	}

	confirmURL := fmt.Sprintf("%s/api/v1/email/confirm?user_id=%s&token=%s", svc.baseURL, userID, token)

	data := VerificationEmailData{
		AppName:    "Scribeline",
		UserID:     userID,
		Token:      token,
		ConfirmURL: confirmURL,
	}

	subject := "Verify Your Email Address - Scribeline"
	return svc.sendTemplateEmail(email, subject, "verification", data)
}

func (svc *EmailService) sendTemplateEmail(to, subject, templateName string, data interface{}) error {
	tmpl, exists := svc.templates[templateName]
	if !exists {
		return fmt.Errorf("template %s not found", templateName)
	}

	var body bytes.Buffer
	err := tmpl.Execute(&body, data)
	if err != nil {
		return fmt.Errorf("failed to execute template: %v", err)
	}

	return svc.send(to, subject, "text/html; charset=UTF-8", body.Bytes())
}

// SendDocument mails a finished document with its attachments. Attachment
// files that cannot be read are skipped one by one; their filenames come
// back in missing. The body text always goes out.
func (svc *EmailService) SendDocument(to, subject, body string, attachments []model.AttachmentRef) (missing []string, err error) {
	if svc.smtpHost == "" {
		log.Warn("SMTP not configured, skipping document email")
		return nil, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build message body: %v", err)
	}
	if _, err = textPart.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("failed to build message body: %v", err)
	}

	for _, att := range attachments {
		content, readErr := os.ReadFile(att.Path)
		if readErr != nil {
			log.WithError(readErr).WithFields(log.Fields{"to": to, "filename": att.Filename}).Warn("Attachment unreadable, sending without it")
			missing = append(missing, att.Filename)
			continue
		}

		mimeType := att.MimeType
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(att.Filename))
		}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		part, partErr := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mimeType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", att.Filename)},
		})
		if partErr != nil {
			return missing, fmt.Errorf("failed to attach %s: %v", att.Filename, partErr)
		}

		encoded := base64.StdEncoding.EncodeToString(content)
		if _, partErr = part.Write([]byte(encoded)); partErr != nil {
			return missing, fmt.Errorf("failed to attach %s: %v", att.Filename, partErr)
		}
	}

	if err = writer.Close(); err != nil {
		return missing, fmt.Errorf("failed to finalize message: %v", err)
	}

	contentType := fmt.Sprintf("multipart/mixed; boundary=%s", writer.Boundary())
	if err = svc.send(to, subject, contentType, buf.Bytes()); err != nil {
		return missing, err
	}
	return missing, nil
}

// Send plain text email (for simple notifications)
func (svc *EmailService) SendPlainEmail(to, subject, body string) error {
	if svc.smtpHost == "" {
		log.Warn("SMTP not configured, skipping email")
		return nil
	}

	return svc.send(to, subject, "text/plain; charset=UTF-8", []byte(body))
}

func (svc *EmailService) send(to, subject, contentType string, body []byte) error {
	auth := smtp.PlainAuth("", svc.smtpUsername, svc.smtpPassword, svc.smtpHost)

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: %s\r\n"+
			"\r\n",
		svc.fromName, svc.fromEmail, to, subject, contentType))
	msg = append(msg, body...)

	err := svc.sendMail(
		svc.smtpHost+":"+svc.smtpPort,
		auth,
		svc.fromEmail,
		[]string{to},
		msg,
	)

	if err != nil {
		emailsFailedTotal.Inc()
		log.WithError(err).WithFields(log.Fields{"to": to, "subject": subject}).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %v", err)
	}

	emailsSentTotal.Inc()
	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("Email sent")
	return nil
}

// Test email configuration
func (svc *EmailService) TestEmailConfig() error {
	if svc.smtpHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}

	testEmail := svc.fromEmail
	if testEmail == "" {
		return fmt.Errorf("from email not configured")
	}

	subject := "Test Email Configuration - Scribeline"
	body := "This is a test email to verify SMTP configuration."

	return svc.SendPlainEmail(testEmail, subject, body)
}
