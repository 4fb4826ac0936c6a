package otpAuth

import (
	"bytes"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

type mailTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type messageTemplates struct {
	frontend string

	confirmRegistration mailTemplate
	loginOTP            mailTemplate
	passwordReset       mailTemplate
	verifyEmail         mailTemplate
}

type mailData struct {
	Username string
	Link     string
	Code     string
	Expires  string
	Minutes  int
}

const (
	confirmText = `Hi {{.Username}},

Confirm your account by opening the link below. It expires in {{.Minutes}} minutes.

{{.Link}}
`
	confirmHTML = `<p>Hi {{.Username}},</p>
<p>Confirm your account by opening the link below. It expires in {{.Minutes}} minutes.</p>
<p><a href="{{.Link}}">Confirm account</a></p>`

	otpText = `Your login code is {{.Code}}.

It expires at {{.Expires}}. If you did not try to log in, change your password.
`
	otpHTML = `<p>Your login code is <strong>{{.Code}}</strong>.</p>
<p>It expires at {{.Expires}}. If you did not try to log in, change your password.</p>`

	resetText = `Hi {{.Username}},

Reset your password with the link below. It expires in {{.Minutes}} minutes and works once.

{{.Link}}
`
	resetHTML = `<p>Hi {{.Username}},</p>
<p>Reset your password with the link below. It expires in {{.Minutes}} minutes and works once.</p>
<p><a href="{{.Link}}">Reset password</a></p>`

	verifyText = `Hi {{.Username}},

Verify your email address with the link below.

{{.Link}}
`
	verifyHTML = `<p>Hi {{.Username}},</p>
<p>Verify your email address with the link below.</p>
<p><a href="{{.Link}}">Verify email</a></p>`
)

func parseMailTemplate(name, subject, text, html string) (mailTemplate, error) {
	t, err := texttemplate.New(name).Parse(text)
	if err != nil {
		return mailTemplate{}, err
	}
	h, err := htmltemplate.New(name).Parse(html)
	if err != nil {
		return mailTemplate{}, err
	}
	return mailTemplate{subject: subject, text: t, html: h}, nil
}

func newMessageTemplates(links LinksConfig) (*messageTemplates, error) {
	m := &messageTemplates{frontend: strings.TrimRight(strings.TrimSpace(links.FrontendURL), "/")}
	var err error
	if m.confirmRegistration, err = parseMailTemplate("confirm", "Confirm your account", confirmText, confirmHTML); err != nil {
		return nil, err
	}
	if m.loginOTP, err = parseMailTemplate("otp", "Your login code", otpText, otpHTML); err != nil {
		return nil, err
	}
	if m.passwordReset, err = parseMailTemplate("reset", "Reset your password", resetText, resetHTML); err != nil {
		return nil, err
	}
	if m.verifyEmail, err = parseMailTemplate("verify", "Verify your email", verifyText, verifyHTML); err != nil {
		return nil, err
	}
	return m, nil
}

func (t mailTemplate) render(to string, data mailData) (Message, error) {
	var text, html bytes.Buffer
	if err := t.text.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := t.html.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: t.subject, Text: text.String(), HTML: html.String()}, nil
}

func (m *messageTemplates) confirmation(to, username, token string, ttl time.Duration) (Message, error) {
	return m.confirmRegistration.render(to, mailData{
		Username: username,
		Link:     m.frontend + "/auth/verify/" + url.PathEscape(token),
		Minutes:  int(ttl / time.Minute),
	})
}

func (m *messageTemplates) otp(to, code string, expiresAt time.Time) (Message, error) {
	return m.loginOTP.render(to, mailData{
		Code:    code,
		Expires: expiresAt.UTC().Format("15:04:05 MST"),
	})
}

func (m *messageTemplates) reset(to, username, token string, ttl time.Duration) (Message, error) {
	return m.passwordReset.render(to, mailData{
		Username: username,
		Link:     m.frontend + "/auth/reset-password?token=" + url.QueryEscape(token),
		Minutes:  int(ttl / time.Minute),
	})
}

func (m *messageTemplates) emailVerification(to, username, token string) (Message, error) {
	return m.verifyEmail.render(to, mailData{
		Username: username,
		Link:     m.frontend + "/auth/verify-email?token=" + url.QueryEscape(token),
	})
}
