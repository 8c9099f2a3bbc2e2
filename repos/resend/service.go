package resend

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	resend "github.com/resend/resend-go/v2"
	"golang.org/x/xerrors"
)

// EmailSender is the part of the Resend client the service uses.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Service mails reports to the event organizers.
type Service struct {
	emails     EmailSender
	from       string
	recipients []string
}

// NewService returns nil when there is no API key or nobody to mail, which
// callers treat as reporting disabled.
func NewService(apiKey, from string, recipients []string) *Service {
	if apiKey == "" || len(recipients) == 0 {
		return nil
	}
	return NewServiceWithSender(resend.NewClient(apiKey).Emails, from, recipients)
}

func NewServiceWithSender(emails EmailSender, from string, recipients []string) *Service {
	return &Service{
		emails:     emails,
		from:       from,
		recipients: recipients,
	}
}

func (s *Service) SendVoteReport(ctx context.Context, report VoteReport) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      s.recipients,
		Subject: fmt.Sprintf("Delegation votes synced (%d tallies)", report.Written),
		Html:    getReportTemplate(report),
	}

	_, err := s.emails.SendWithContext(ctx, params)
	if err != nil {
		log.Printf("Failed to send mail request: %v", err)
		return xerrors.Errorf("send vote report: %w", err)
	}
	return nil
}

func getReportTemplate(report VoteReport) string {
	var rows strings.Builder
	for _, t := range report.Tallies {
		winner := ""
		if t.Winner {
			winner = "&#127942;"
		}
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>\n",
			html.EscapeString(t.Sport), html.EscapeString(t.Delegation), t.Votes, winner)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <style>
        body {
            font-family: Arial, sans-serif;
            background-color: #f4f4f4;
            margin: 0;
            padding: 20px;
        }
        .container {
            background-color: #ffffff;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
        td, th {
            padding: 4px 8px;
            text-align: left;
        }
    </style>
</head>
<body>
    <div class="container">
        <h2>Vote sync %s</h2>
        <p>%d participants, %d tallies written, %d failed.</p>
        <table>
            <tr><th>Sport</th><th>Delegation</th><th>Votes</th><th></th></tr>
%s        </table>
    </div>
</body>
</html>`, report.At.Format("2006-01-02 15:04"), report.Participants, report.Written, report.Failed, rows.String())
}
