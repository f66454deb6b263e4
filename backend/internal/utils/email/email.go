package email

import (
	"crypto/tls"
	"fmt"
	"math/rand"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/errors"
	"github.com/itchan-dev/accounts/shared/logger"
)

type Email struct {
	config   *config.Email
	auth     smtp.Auth
	validate *validator.Validate
}

func New(config *config.Email) *Email {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.SMTPServer)
	return &Email{
		config:   config,
		auth:     auth,
		validate: validator.New(),
	}
}

// IsCorrect accepts a bare address only, display names like "Bob <bob@x.org>" are rejected.
func (e *Email) IsCorrect(email string) error {
	return isCorrect(e.validate, email)
}

func isCorrect(validate *validator.Validate, email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.WithMessage(errors.ErrValidation, fmt.Sprintf("%q is not a valid email address", email))
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return errors.WithMessage(errors.ErrValidation, fmt.Sprintf("%q is not a valid email address", email))
	}
	return nil
}

// Send delivers an HTML message.
func (e *Email) Send(recipientEmail, subject, htmlBody string) error {
	msg := e.buildMessage(recipientEmail, subject, htmlBody)
	address := fmt.Sprintf("%s:%d", e.config.SMTPServer, e.config.SMTPPort)

	// Port 465 = implicit TLS, otherwise STARTTLS
	if e.config.SMTPPort == 465 {
		return e.sendImplicitTLS(address, recipientEmail, msg)
	}
	return e.sendSTARTTLS(address, recipientEmail, msg)
}

func (e *Email) timeout() time.Duration {
	timeout := time.Duration(e.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return timeout
}

func (e *Email) sendImplicitTLS(address, recipientEmail string, msg []byte) error {
	tlsConfig := &tls.Config{ServerName: e.config.SMTPServer}

	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: e.timeout()}, "tcp", address, tlsConfig)
	if err != nil {
		logger.Log.Error("failed to connect to SMTP server (implicit TLS)", "address", address, "error", err)
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(e.timeout()))

	client, err := smtp.NewClient(conn, e.config.SMTPServer)
	if err != nil {
		logger.Log.Error("failed to create SMTP client", "error", err)
		return err
	}
	defer client.Close()

	return e.sendViaClient(client, recipientEmail, msg)
}

func (e *Email) sendSTARTTLS(address, recipientEmail string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", address, e.timeout())
	if err != nil {
		logger.Log.Error("failed to connect to SMTP server", "address", address, "error", err)
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(e.timeout()))

	client, err := smtp.NewClient(conn, e.config.SMTPServer)
	if err != nil {
		logger.Log.Error("failed to create SMTP client", "error", err)
		return err
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: e.config.SMTPServer}); err != nil {
		logger.Log.Error("failed to start TLS", "error", err)
		return err
	}

	return e.sendViaClient(client, recipientEmail, msg)
}

func (e *Email) sendViaClient(client *smtp.Client, recipientEmail string, msg []byte) error {
	if err := client.Auth(e.auth); err != nil {
		logger.Log.Error("SMTP authentication failed", "error", err)
		return err
	}
	if err := client.Mail(e.config.Username); err != nil {
		logger.Log.Error("failed to set sender", "error", err)
		return err
	}
	if err := client.Rcpt(recipientEmail); err != nil {
		logger.Log.Error("failed to set recipient", "recipient", recipientEmail, "error", err)
		return err
	}

	w, err := client.Data()
	if err != nil {
		logger.Log.Error("failed to get data writer", "error", err)
		return err
	}
	if _, err = w.Write(msg); err != nil {
		logger.Log.Error("failed to write message", "error", err)
		return err
	}
	if err = w.Close(); err != nil {
		logger.Log.Error("failed to close data writer", "error", err)
		return err
	}

	return client.Quit()
}

func generateMessageID(domain string) string {
	return fmt.Sprintf("<%d.%d@%s>", time.Now().UnixNano(), rand.Int63(), domain)
}

func senderDomain(sender string) string {
	if _, domain, found := strings.Cut(sender, "@"); found && domain != "" {
		return domain
	}
	return "localhost"
}

func (e *Email) buildMessage(recipient, subject, htmlBody string) []byte {
	return buildMessage(e.config.Username, e.config.SenderName, recipient, subject, htmlBody)
}

func buildMessage(sender, senderName, recipient, subject, htmlBody string) []byte {
	encodedSubject := mime.QEncoding.Encode("utf-8", subject)
	encodedSenderName := mime.QEncoding.Encode("utf-8", senderName)

	return fmt.Appendf(nil,
		"Message-ID: %s\r\n"+
			"Date: %s\r\n"+
			"To: %s\r\n"+
			"From: %s <%s>\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n"+
			"%s",
		generateMessageID(senderDomain(sender)), time.Now().Format(time.RFC1123Z), recipient, encodedSenderName, sender, encodedSubject, htmlBody,
	)
}

// LogSender writes messages to the log instead of an SMTP server. Used with email.dry_run.
type LogSender struct {
	validate *validator.Validate
}

func NewLogSender() *LogSender {
	return &LogSender{validate: validator.New()}
}

func (l *LogSender) IsCorrect(email string) error {
	return isCorrect(l.validate, email)
}

func (l *LogSender) Send(recipientEmail, subject, htmlBody string) error {
	logger.Log.Info("email not delivered (dry run)", "recipient", recipientEmail, "subject", subject, "body", htmlBody)
	return nil
}
