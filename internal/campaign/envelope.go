package campaign

import "strings"

// EventSendEmail tags every enqueued body as a send-email event.
const EventSendEmail = "send_email"

type Tag struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Envelope is the JSON body of one queue entry. Only Tags values are
// uppercased; the body fields carry the request values unchanged.
type Envelope struct {
	Event            string         `json:"event"`
	CorrelationID    string         `json:"correlationId"`
	CampaignID       string         `json:"campaignId"`
	UniversityName   string         `json:"university_name"`
	RecipientID      string         `json:"recipientId"`
	EmailToAddress   string         `json:"email_to_address"`
	EmailFromName    string         `json:"email_from_name"`
	EmailFromAddress string         `json:"email_from_address"`
	ReplyToAddress   string         `json:"reply_to_address"`
	EmailSubject     string         `json:"email_subject"`
	TemplateKey      string         `json:"templateKey"`
	Vars             map[string]any `json:"vars"`
	ConfigurationSet string         `json:"configurationSet,omitempty"`
	Tags             []Tag          `json:"tags"`
}

func buildTags(campaignID, correlationID, universityName string) []Tag {
	return []Tag{
		{Name: "campaign_id", Value: strings.ToUpper(campaignID)},
		{Name: "correlation_id", Value: strings.ToUpper(correlationID)},
		{Name: "university_name", Value: strings.ToUpper(universityName)},
	}
}
