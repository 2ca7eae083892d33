package notify

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var layoutTemplate = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width,initial-scale=1" />
  <title>{{.Subject}}</title>
  <style>
    body { margin:0; padding:0; background:#f2f4f6; font-family:Arial,sans-serif; }
    .container { max-width:600px; margin:40px auto; background:#fff; border-radius:8px; overflow:hidden; }
    .header { background:#4A90E2; padding:20px; text-align:center; color:#fff; }
    .header h1 { margin:0; font-size:24px; }
    .hero img { width:100%; height:auto; display:block; }
    .content { padding:30px; color:#333; font-size:16px; line-height:1.5; }
    .footer { background:#e8ebee; padding:20px; text-align:center; font-size:12px; color:#777; }
    @media screen and (max-width:600px) { .content { padding:20px; } }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>{{.Subject}}</h1></div>
    {{- if .ImageURL}}
    <div class="hero"><img src="{{.ImageURL}}" alt="Announcement Poster" /></div>
    {{- end}}
    <div class="content">
      {{- range .Lines}}
      <p>{{.}}</p>
      {{- end}}
    </div>
    <div class="footer">
      This is an automated announcement from the {{.Brand}} platform.<br/>
      &copy; {{.Year}} {{.Brand}}. All rights reserved.
    </div>
  </div>
</body>
</html>
`))

// Layout renders message bodies into the branded HTML email.
type Layout struct {
	Brand string
	now   func() time.Time
}

func NewLayout(brand string) *Layout {
	if brand == "" {
		brand = "Langzy"
	}
	return &Layout{Brand: brand, now: time.Now}
}

// Render returns the HTML for msg; each body line becomes a paragraph.
func (l *Layout) Render(msg Message) (string, error) {
	data := struct {
		Subject  string
		ImageURL string
		Lines    []string
		Brand    string
		Year     int
	}{
		Subject:  msg.Subject,
		ImageURL: msg.ImageURL,
		Lines:    strings.Split(msg.Body, "\n"),
		Brand:    l.Brand,
		Year:     l.now().Year(),
	}
	var buf bytes.Buffer
	if err := layoutTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
