package campaign

// CampaignRequest is the inbound unit of work for one email campaign send.
type CampaignRequest struct {
	CampaignID     string      `json:"campaign_id"      validate:"required"`
	CorrelationID  string      `json:"correlation_id"   validate:"required"`
	Subject        string      `json:"subject"          validate:"required"`
	TemplateKey    string      `json:"template_key"     validate:"required"`
	FromName       string      `json:"from_name"        validate:"required"`
	FromAddress    string      `json:"from_address"     validate:"required"`
	ReplyToAddress string      `json:"reply_to_address" validate:"required,email"`
	Recipients     []Recipient `json:"recipients"       validate:"required,min=1,dive"`
}

type Recipient struct {
	RecipientID string         `json:"recipient_id" validate:"required"`
	Email       string         `json:"email"        validate:"required,email"`
	University  string         `json:"university,omitempty"`
	Segment     string         `json:"segment,omitempty"`
	Vars        map[string]any `json:"vars,omitempty"`
}

// RenderedMessage is one recipient's fully substituted message together with
// its serialized wire body.
type RenderedMessage struct {
	RecipientID string
	Email       string
	Subject     string
	FromName    string
	FromAddress string
	Vars        map[string]any
	Body        []byte
	Size        int
}

type EnqueueResp struct {
	OK       bool `json:"ok"`
	Enqueued int  `json:"enqueued"`
	Batches  int  `json:"batches"`
}

type Offender struct {
	RecipientID string `json:"recipient_id"`
	Email       string `json:"email"`
	Size        int    `json:"size"`
}
