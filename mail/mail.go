// Package mail holds otpAuth.Mailer transports: SMTP for deployments, a slog
// logger for development and an in-memory recorder for tests. Tests assert
// with testify over a stubbed SMTP send function.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/MrEthical07/otpAuth"
	"github.com/google/uuid"
)

// SMTPConfig holds configuration for the SMTP sender.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
}

// Validate checks that all required SMTP configuration fields are set.
// Username and Password may be empty for relays that do not authenticate.
func (cfg SMTPConfig) Validate() error {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "Host")
	}
	if cfg.Port == 0 {
		missing = append(missing, "Port")
	}
	if cfg.From == "" {
		missing = append(missing, "From")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing SMTP configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends multipart text/HTML mail through one SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	send sendFunc
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}, nil
}

// Send delivers msg. smtp.SendMail has no context support, so ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg otpAuth.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := s.buildMIMEMessage(msg)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) buildMIMEMessage(msg otpAuth.Message) ([]byte, error) {
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, fmt.Errorf("header injection in recipient or subject")
	}

	var buf bytes.Buffer
	boundary := "otpauth-" + uuid.NewString()

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.From)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	buf.WriteString("\r\n")

	writePart(&buf, boundary, "text/plain", msg.Text)
	if msg.HTML != "" {
		writePart(&buf, boundary, "text/html", msg.HTML)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes(), nil
}

func writePart(buf *bytes.Buffer, boundary, contentType, body string) {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Type: %s; charset=\"UTF-8\"\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	buf.WriteString("\r\n")
}

// LogSender logs every message instead of sending it. Development only: the
// log carries OTPs and links.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender uses slog.Default when logger is nil.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, msg otpAuth.Message) error {
	l.logger.InfoContext(ctx, "mail", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []otpAuth.Message
	// Err, when set, is returned by Send and nothing is recorded.
	Err error
}

func (r *Recorder) Send(ctx context.Context, msg otpAuth.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []otpAuth.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]otpAuth.Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent message sent to to.
func (r *Recorder) Last(to string) (otpAuth.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].To == to {
			return r.sent[i], true
		}
	}
	return otpAuth.Message{}, false
}

var (
	_ otpAuth.Mailer = (*SMTPSender)(nil)
	_ otpAuth.Mailer = (*LogSender)(nil)
	_ otpAuth.Mailer = (*Recorder)(nil)
)
