package domain

// PixWebhook is the payment-notification payload the bank posts to us.
// Note: it carries no tenant identifier; reconciliation has to search
// charge records across every tenant by txid.
type PixWebhook struct {
	Pix []WebhookPix `json:"pix"`
}

// WebhookPix is one settled payment inside a webhook delivery.
type WebhookPix struct {
	TxID       string `json:"txid"`
	EndToEndID string `json:"endToEndId"`
	Amount     string `json:"valor"`
	Timestamp  string `json:"horario"`
	PayerInfo  string `json:"infoPagador,omitempty"`
}
