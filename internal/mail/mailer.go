package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ShareNotification struct {
	ToEmail   string
	TaskTitle string
	SharedBy  string
	ShareLink string
}

type Mailer interface {
	SendShareNotification(ctx context.Context, notification ShareNotification) error
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Enabled reports whether credentials are configured. Without them email is
// logged instead of sent.
func (c SMTPConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

func New(logger *zap.Logger, config SMTPConfig) Mailer {
	if !config.Enabled() {
		logger.Info("smtp credentials not configured, email notifications disabled")

		return NewLogMailer(logger)
	}

	return NewSMTPMailer(logger, config)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	logger   *zap.Logger
	config   SMTPConfig
	breaker  *gobreaker.CircuitBreaker[struct{}]
	sendMail sendFunc
}

func NewSMTPMailer(logger *zap.Logger, config SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{
		logger:   logger,
		config:   config,
		sendMail: smtp.SendMail,
	}

	m.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("smtp circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return m
}

func (m *SMTPMailer) SendShareNotification(ctx context.Context, notification ShareNotification) error {
	subject := notification.SharedBy + " shared a task with you"

	view := struct {
		SharedBy  string
		TaskTitle string
		ShareLink template.URL
	}{
		SharedBy:  notification.SharedBy,
		TaskTitle: notification.TaskTitle,
		ShareLink: template.URL(notification.ShareLink),
	}

	var body bytes.Buffer
	if err := shareNotificationTemplate.Execute(&body, view); err != nil {
		return fmt.Errorf("failed to render share notification: %w", err)
	}

	err := m.send(ctx, notification.ToEmail, subject, body.Bytes())
	if err != nil {
		return err
	}

	m.logger.Info("share notification sent", zap.String("to", notification.ToEmail))

	return nil
}

func (m *SMTPMailer) send(ctx context.Context, to string, subject string, html []byte) error {
	from := mail.Address{Name: m.config.FromName, Address: m.config.FromEmail}
	message := buildMessage(from.String(), to, subject, html)
	addr := m.config.Host + ":" + strconv.Itoa(m.config.Port)
	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)

	_, err := m.breaker.Execute(func() (struct{}, error) {
		done := make(chan error, 1)

		go func() {
			done <- m.sendMail(addr, auth, m.config.FromEmail, []string{to}, message)
		}()

		select {
		case err := <-done:
			return struct{}{}, err
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func buildMessage(from string, to string, subject string, html []byte) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(html)

	return buf.Bytes()
}

type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{
		logger,
	}
}

func (m *LogMailer) SendShareNotification(ctx context.Context, notification ShareNotification) error {
	m.logger.Info("email disabled, skipping share notification",
		zap.String("to", notification.ToEmail),
		zap.String("shareLink", notification.ShareLink))

	return nil
}

var shareNotificationTemplate = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; }
.header { background: #4f46e5; color: white; padding: 20px; text-align: center; }
.content { padding: 30px; background: #f9fafb; }
.task { background: white; border-radius: 8px; padding: 20px; margin: 20px 0; }
.button { display: inline-block; background: #4f46e5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; }
</style>
</head>
<body>
<div class="header"><h1>Task Shared With You</h1></div>
<div class="content">
<p>Hello,</p>
<p><strong>{{.SharedBy}}</strong> has shared a task with you on Todo App:</p>
<div class="task">
<h3>{{.TaskTitle}}</h3>
<p>You can now view and collaborate on this task.</p>
</div>
<p><a href="{{.ShareLink}}" class="button">View Task</a></p>
<p>If the button doesn't work, copy this link into your app: {{.ShareLink}}</p>
</div>
</body>
</html>
`))
