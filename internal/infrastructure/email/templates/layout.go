// Package templates provides email template layout and components
package templates

import (
	"bytes"
	"html/template"
	"log"
)

type EmailLayoutProps struct {
	Preheader     string
	Title         string
	Content       string
	FooterText    string
	PoweredByText string
	PoweredByURL  string
}

type emailTemplateData struct {
	Preheader     string
	Title         string
	Content       template.HTML // pre-rendered components
	FooterText    string
	PoweredByText string
	PoweredByURL  string
}

var emailLayoutTemplate = template.Must(template.New("emailLayout").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>{{.Title}}</title>
    <style media="all" type="text/css">
      @media only screen and (max-width: 640px) {
        .main p, .main td, .main span { font-size: 16px !important; }
        .wrapper { padding: 8px !important; }
        .container { padding: 0 !important; padding-top: 8px !important; width: 100% !important; }
        .main { border-left-width: 0 !important; border-radius: 0 !important; border-right-width: 0 !important; }
      }
    </style>
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.3; background-color: #f4f5f6; margin: 0; padding: 0;">
    <span class="preheader" style="color: transparent; display: none; height: 0; max-height: 0; max-width: 0; opacity: 0; overflow: hidden; mso-hide: all; visibility: hidden; width: 0;">{{.Preheader}}</span>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" class="body" style="border-collapse: separate; background-color: #f4f5f6; width: 100%;" width="100%" bgcolor="#f4f5f6">
      <tr>
        <td>&nbsp;</td>
        <td class="container" style="max-width: 600px; padding-top: 24px; width: 600px; margin: 0 auto;" width="600" valign="top">
          <table role="presentation" border="0" cellpadding="0" cellspacing="0" class="main" style="border-collapse: separate; background: #ffffff; border: 1px solid #eaebed; border-radius: 16px; width: 100%;" width="100%">
            <tr>
              <td class="wrapper" style="font-size: 16px; vertical-align: top; box-sizing: border-box; padding: 24px;" valign="top">
                {{.Content}}
              </td>
            </tr>
          </table>
          <div class="footer" style="clear: both; padding-top: 24px; text-align: center; width: 100%; color: #9a9ea6;">
            {{.FooterText}}
            <br>Powered by <a href="{{.PoweredByURL}}" style="color: #9a9ea6; text-decoration: none;">{{.PoweredByText}}</a>
          </div>
        </td>
        <td>&nbsp;</td>
      </tr>
    </table>
  </body>
</html>`))

// GetEmailLayout wraps rendered content in the shared email chrome
func GetEmailLayout(props EmailLayoutProps) string {
	data := emailTemplateData{
		Preheader:     props.Preheader,
		Title:         props.Title,
		Content:       template.HTML(props.Content),
		FooterText:    props.FooterText,
		PoweredByText: props.PoweredByText,
		PoweredByURL:  props.PoweredByURL,
	}
	if data.Title == "" {
		data.Title = "Launch recap"
	}
	if data.FooterText == "" {
		data.FooterText = "You received this recap because it was requested from your dashboard."
	}
	if data.PoweredByText == "" {
		data.PoweredByText = "LaunchTrack"
	}
	if data.PoweredByURL == "" {
		data.PoweredByURL = "https://launchtrack.app"
	}

	var buf bytes.Buffer
	if err := emailLayoutTemplate.Execute(&buf, data); err != nil {
		log.Printf("Error executing email layout template: %v", err)
		return "<html><body>Template execution error</body></html>"
	}
	return buf.String()
}
