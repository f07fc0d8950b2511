package template

// Kind selects a fixed template body.
type Kind string

const (
	KindApproval            Kind = "approval"
	KindRejection           Kind = "rejection"
	KindWelcome             Kind = "welcome"
	KindAdminFailureSummary Kind = "admin_failure_summary"
)

// DefaultContactName is substituted when a club has no named contact.
const DefaultContactName = "Club Administrator"

// Shared HTML layout. Every rendered message is a full document with a
// viewport meta tag and a responsive max-width container.
const layoutHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Subject}}</title>
</head>
<body bgcolor="#f4f4f4">
<table width="100%" cellpadding="0" cellspacing="0"><tr><td align="center">
<table width="600" cellpadding="24" cellspacing="0" bgcolor="#ffffff" role="presentation" align="center">
<tr><td align="center" bgcolor="#1a7f3c"><h1>{{.PlatformName}}</h1></td></tr>
<tr><td>
`

const layoutFooter = `
</td></tr>
<tr><td align="center"><p><small>This is an automated message from {{.PlatformName}} ({{.PlatformURL}}). Please do not reply.</small></p></td></tr>
</table>
</td></tr></table>
</body>
</html>
`

const approvalHTMLBody = `<h2>Congratulations, your club has been approved!</h2>
<p>Dear {{.ContactName}},</p>
<p>Great news &mdash; <strong>{{.ClubName}}</strong> has been approved to join {{.PlatformName}}. You can now post volunteer opportunities and start connecting with volunteers in your area.</p>
<p>Sign in to your club dashboard to get started.</p>
<p>The {{.PlatformName}} Team</p>`

const approvalTextBody = `Congratulations, your club has been approved!

Dear {{.ContactName}},

Great news - {{.ClubName}} has been approved to join {{.PlatformName}}. You can now post volunteer opportunities and start connecting with volunteers in your area.

Sign in to your club dashboard to get started.

The {{.PlatformName}} Team
`

const rejectionHTMLBody = `<h2>An update on your club application</h2>
<p>Dear {{.ContactName}},</p>
<p>Thank you for applying to register <strong>{{.ClubName}}</strong> on {{.PlatformName}}. After review, we are unable to approve your application at this time.</p>
<p><em>Reason: {{.Reason}}</em></p>
<p>You are welcome to address the points above and apply again.</p>
<p>The {{.PlatformName}} Team</p>`

const rejectionTextBody = `An update on your club application

Dear {{.ContactName}},

Thank you for applying to register {{.ClubName}} on {{.PlatformName}}. After review, we are unable to approve your application at this time.

Reason: {{.Reason}}

You are welcome to address the points above and apply again.

The {{.PlatformName}} Team
`

const welcomeHTMLBody = `<h2>Welcome to {{.PlatformName}}!</h2>
<p>Dear {{.ContactName}},</p>
<p><strong>{{.ClubName}}</strong> is now live on {{.PlatformName}}. Here are a few things to do next:</p>
<p>&bull; Complete your club profile so volunteers know who you are<br>
&bull; Post your first volunteer opportunity<br>
&bull; Review applications from your club dashboard</p>
<p>We are glad to have you on board.</p>
<p>The {{.PlatformName}} Team</p>`

const welcomeTextBody = `Welcome to {{.PlatformName}}!

Dear {{.ContactName}},

{{.ClubName}} is now live on {{.PlatformName}}. Here are a few things to do next:

* Complete your club profile so volunteers know who you are
* Post your first volunteer opportunity
* Review applications from your club dashboard

We are glad to have you on board.

The {{.PlatformName}} Team
`

const adminFailureHTMLBody = `<h2>Notification delivery failures</h2>
<p>The following club notifications could not be delivered after exhausting their retry budget. Manual follow-up is required.</p>
{{range .Failures}}<p><strong>{{.ClubName}}</strong> ({{.Email}})<br>{{.Error}}</p>
{{end}}<p>Total failures: {{len .Failures}}</p>`

const adminFailureTextBody = `Notification delivery failures

The following club notifications could not be delivered after exhausting their retry budget. Manual follow-up is required.

{{range .Failures}}- {{.ClubName}} ({{.Email}}): {{.Error}}
{{end}}
Total failures: {{len .Failures}}
`

var subjects = map[Kind]string{
	KindApproval:            "Your club application has been approved",
	KindRejection:           "An update on your club application",
	KindWelcome:             "Welcome to {{.PlatformName}}",
	KindAdminFailureSummary: "[{{.PlatformName}}] Notification delivery failures require attention",
}

var htmlBodies = map[Kind]string{
	KindApproval:            approvalHTMLBody,
	KindRejection:           rejectionHTMLBody,
	KindWelcome:             welcomeHTMLBody,
	KindAdminFailureSummary: adminFailureHTMLBody,
}

var textBodies = map[Kind]string{
	KindApproval:            approvalTextBody,
	KindRejection:           rejectionTextBody,
	KindWelcome:             welcomeTextBody,
	KindAdminFailureSummary: adminFailureTextBody,
}
