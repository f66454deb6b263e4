package utils

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const confirmationTemplate = `Hello: %s %s

Please confirm your email address by clicking on the following link.

[Click here](<%s>)

Thank you,

%s
`

// ConfirmationMessage renders the confirmation email body as HTML.
type ConfirmationMessage struct {
	appName string
	md      goldmark.Markdown
	strict  *bluemonday.Policy
	ugc     *bluemonday.Policy
}

func NewConfirmationMessage(appName string) *ConfirmationMessage {
	return &ConfirmationMessage{
		appName: appName,
		md:      goldmark.New(),
		strict:  bluemonday.StrictPolicy(),
		ugc:     bluemonday.UGCPolicy(),
	}
}

func (m *ConfirmationMessage) Subject() string {
	return "Confirm your email"
}

func (m *ConfirmationMessage) Render(firstName, lastName, link string) (string, error) {
	source := fmt.Sprintf(confirmationTemplate,
		m.clean(firstName), m.clean(lastName), link, m.clean(m.appName))

	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render confirmation email: %w", err)
	}
	return m.ugc.Sanitize(buf.String()), nil
}

// clean strips markup and escapes markdown so user supplied text renders literally.
func (m *ConfirmationMessage) clean(s string) string {
	return escapeMarkdown(html.UnescapeString(m.strict.Sanitize(s)))
}

func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune("\\`*_{}[]()<>#+-.!|~&", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConfirmationLink builds {clientUrl}/{path}?token=...&email=...
func ConfirmationLink(clientUrl, path, token, email string) (string, error) {
	u, err := url.Parse(strings.TrimRight(clientUrl, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("build confirmation link: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("email", email)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
