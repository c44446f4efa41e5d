package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/dodokudo/autostudio/internal/config"
)

// Notifier delivers operator alerts. Delivery is best-effort: failures are
// logged and never propagated into the publishing path.
type Notifier interface {
	Notify(ctx context.Context, subject, body string)
}

type SMTPNotifier struct {
	logger *zap.Logger
	config *config.NotifierConfig
}

func NewSMTPNotifier(logger *zap.Logger, cfg *config.NotifierConfig) *SMTPNotifier {
	return &SMTPNotifier{
		logger: logger.Named("notifier"),
		config: cfg,
	}
}

func (n *SMTPNotifier) recipients() []string {
	var out []string
	for _, addr := range strings.Split(n.config.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) {
	to := n.recipients()
	if !n.config.Enabled || n.config.SMTPHost == "" || len(to) == 0 {
		n.logger.Debug("SMTP not configured, skipping notification",
			zap.String("subject", subject))
		return
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", n.config.From),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", n.config.SMTPHost, n.config.SMTPPort)
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, n.config.From, to, []byte(msg)); err != nil {
		n.logger.Error("failed to send notification",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	n.logger.Info("notification sent",
		zap.String("subject", subject),
		zap.Strings("to", to))
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, subject, body string) {}

func notifyPublishFailure(ctx context.Context, n Notifier, kind, unitID, planID, errorMessage string) {
	if n == nil {
		return
	}
	subject := fmt.Sprintf("[autostudio] %s failed: %s", kind, unitID)
	body := fmt.Sprintf("%s %s failed to publish.\n\nplan: %s\nerror: %s\n", kind, unitID, planID, errorMessage)
	n.Notify(ctx, subject, body)
}
