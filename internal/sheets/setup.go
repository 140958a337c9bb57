package sheets

import (
	"fmt"
	"strings"

	"github.com/zombor/card-scanner/internal/contact"
)

// AppsScript is the reference webhook the user deploys behind their sheet.
// It writes a header row into an empty sheet, then appends one row per request.
const AppsScript = `function doPost(e) {
  const sheet = SpreadsheetApp.getActiveSpreadsheet().getActiveSheet();
  const data = JSON.parse(e.postData.contents);

  if (sheet.getLastRow() === 0) {
    sheet.appendRow(["Name", "Job Title", "Company", "Email", "Phone", "Website", "Address"]);
  }

  sheet.appendRow([
    data.name, data.job_title, data.company, data.email, data.phone, data.website, data.address
  ]);

  return ContentService.createTextOutput(JSON.stringify({result: "success"})).setMimeType(ContentService.MimeType.JSON);
}`

// SetupSteps walks the user through deploying AppsScript.
// The script is shown between the third and fourth step.
var SetupSteps = []string{
	"Create a new Google Sheet.",
	"Go to Extensions > Apps Script.",
	"Delete any code there and paste this:",
	"Click Deploy > New Deployment.",
	"Select type: Web App.",
	`Set "Who has access" to "Anyone".`,
	"Click Deploy and copy the Web App URL.",
	"Paste the URL in the app.",
}

// scriptAfterStep is the number of steps rendered before the script.
const scriptAfterStep = 3

// HeaderRow returns the spreadsheet column titles written by AppsScript.
func HeaderRow() []string {
	header := make([]string, 0, len(contact.Fields))
	for _, f := range contact.Fields {
		header = append(header, f.Label)
	}
	return header
}

// SetupMarkdown renders the setup instructions as Markdown.
func SetupMarkdown() string {
	var b strings.Builder
	b.WriteString("# Setup Instructions\n\n")
	for i, step := range SetupSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		if i+1 == scriptAfterStep {
			b.WriteString("\n```javascript\n")
			b.WriteString(AppsScript)
			b.WriteString("\n```\n\n")
		}
	}
	return b.String()
}
