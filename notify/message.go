package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/url"
	"strings"
	"time"
)

const verificationSubject = "Verify Your Email Address"

// VerificationLink returns the URL the recipient follows to verify.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

var verificationTemplate = template.Must(template.New("verify").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2>Hello {{.Name}},</h2>
<p>Thank you for registering! Please verify your email address by following the link below:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
{{- if .Expires}}
<p>This link will expire in {{.Expires}}.</p>
{{- end}}
<p>If you didn't create an account, you can safely ignore this email.</p>
</div>
`))

type verificationData struct {
	Name    string
	Link    string
	Expires string
}

// buildMessage renders an RFC 5322 message with an HTML body.
func buildMessage(from mail.Address, to, name, link string, ttl time.Duration) ([]byte, error) {
	var body bytes.Buffer
	data := verificationData{Name: name, Link: link}
	if ttl > 0 {
		data.Expires = humanDuration(ttl)
	}
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render verification email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", verificationSubject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
