package templates

import (
	"bytes"
	"html/template"
	"log"
	"net/url"
	"strings"
)

type ButtonProps struct {
	Text            string
	URL             string
	BackgroundColor string
	TextColor       string
}

// StatRow is one label/value line in a stat table
type StatRow struct {
	Label string
	Value string
}

var (
	buttonTemplate = template.Must(template.New("emailButton").Parse(`
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" class="btn btn-primary" style="border-collapse: separate; width: 100%;" width="100%">
      <tr>
        <td align="left" style="padding-bottom: 16px;" valign="top">
          <a href="{{.URL}}" target="_blank" style="border: solid 2px {{.BackgroundColor}}; border-radius: 4px; display: inline-block; font-size: 16px; font-weight: bold; padding: 12px 24px; text-decoration: none; background-color: {{.BackgroundColor}}; color: {{.TextColor}};">{{.Text}}</a>
        </td>
      </tr>
    </table>`))

	paragraphTemplate = template.Must(template.New("emailParagraph").Parse(`<p style="font-size: 16px; font-weight: normal; margin: 0; margin-bottom: 16px;">{{.}}</p>`))

	headingTemplate = template.Must(template.New("emailHeading").Parse(`<h1 style="font-size: 22px; font-weight: bold; margin: 0; margin-bottom: 16px;">{{.}}</h1>`))

	statTableTemplate = template.Must(template.New("emailStats").Parse(`
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="border-collapse: collapse; width: 100%; margin-bottom: 16px;" width="100%">
      {{range .}}<tr>
        <td style="padding: 8px 0; border-bottom: 1px solid #eaebed; color: #6b7280;">{{.Label}}</td>
        <td style="padding: 8px 0; border-bottom: 1px solid #eaebed; text-align: right; font-weight: bold;">{{.Value}}</td>
      </tr>{{end}}
    </table>`))
)

// GetButton renders a call-to-action button; unsafe URLs render nothing
func GetButton(props ButtonProps) string {
	safeURL := sanitizeEmailURL(props.URL)
	if safeURL == "" {
		return ""
	}
	props.URL = safeURL
	props.BackgroundColor = sanitizeColor(props.BackgroundColor, "#0f766e")
	props.TextColor = sanitizeColor(props.TextColor, "#ffffff")
	return render(buttonTemplate, props)
}

// GetParagraph renders escaped text as a paragraph
func GetParagraph(text string) string {
	return render(paragraphTemplate, text)
}

// GetHeading renders escaped text as the message heading
func GetHeading(text string) string {
	return render(headingTemplate, text)
}

// GetStatTable renders label/value rows
func GetStatTable(rows []StatRow) string {
	if len(rows) == 0 {
		return ""
	}
	return render(statTableTemplate, rows)
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		log.Printf("Error executing email template %s: %v", t.Name(), err)
		return ""
	}
	return buf.String()
}

// sanitizeEmailURL validates and sanitizes URLs for email use
func sanitizeEmailURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		log.Printf("Invalid email URL: %s, error: %v", rawURL, err)
		return ""
	}
	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		log.Printf("Blocked unsafe URL scheme in email: %s", scheme)
		return ""
	}
	return parsedURL.String()
}

// sanitizeColor accepts #rgb or #rrggbb and falls back otherwise
func sanitizeColor(color, fallback string) string {
	color = strings.TrimSpace(color)
	if !strings.HasPrefix(color, "#") {
		return fallback
	}
	hex := color[1:]
	if len(hex) != 3 && len(hex) != 6 {
		return fallback
	}
	for _, char := range hex {
		if !((char >= '0' && char <= '9') || (char >= 'a' && char <= 'f') || (char >= 'A' && char <= 'F')) {
			return fallback
		}
	}
	return color
}
