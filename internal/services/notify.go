package services

import (
	"context"
	"fmt"
	"log"
	"net/smtp"

	"github.com/google/uuid"

	"focusvault-backend/internal/repository"
)

// Notifier delivers out-of-band notices to a user. Delivery is best-effort;
// callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, subject, message string) error
}

// EmailNotifier sends notification emails over SMTP. When SMTP is not
// configured it logs the notice instead, so local development needs no mail
// server.
type EmailNotifier struct {
	users   *repository.UserRepo
	host    string
	port    string
	user    string
	pass    string
	from    string
	devMode bool
}

func NewEmailNotifier(users *repository.UserRepo, host, port, user, pass, from string) *EmailNotifier {
	devMode := host == "" || user == ""
	if devMode {
		log.Println("⚠ Email notifier running in DEV MODE (logging to console)")
	}
	return &EmailNotifier{
		users:   users,
		host:    host,
		port:    port,
		user:    user,
		pass:    pass,
		from:    from,
		devMode: devMode,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, userID uuid.UUID, subject, message string) error {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve notification recipient: %w", err)
	}

	if n.devMode {
		log.Printf("📧 [DEV] To: %s | Subject: %s | %s", user.Email, subject, message)
		return nil
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; background-color: #f8fafc; margin: 0; padding: 0;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; overflow: hidden;">
    <div style="background: #0ea5e9; padding: 24px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 22px;">Focus Vault</h1>
    </div>
    <div style="padding: 28px;">
      <h2 style="margin: 0 0 12px; font-size: 18px; color: #1e293b;">Hi %s,</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0;">%s</p>
    </div>
  </div>
</body>
</html>`, user.DisplayName, message)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		n.from, user.Email, subject, body)

	auth := smtp.PlainAuth("", n.user, n.pass, n.host)
	addr := n.host + ":" + n.port
	if err := smtp.SendMail(addr, auth, n.from, []string{user.Email}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}
