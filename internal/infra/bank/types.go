package bank

// Wire types for the bank's OAuth and PIX charge APIs. Field names follow
// the provider's Portuguese JSON contract and must stay bit-compatible.

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

type calendar struct {
	Expiration   int    `json:"expiracao,omitempty"`
	DueDate      string `json:"dataDeVencimento,omitempty"`
	DaysAfterDue int    `json:"validadeAposVencimento,omitempty"`
	CreatedAt    string `json:"criacao,omitempty"`
}

type debtor struct {
	CPF    string `json:"cpf,omitempty"`
	CNPJ   string `json:"cnpj,omitempty"`
	Name   string `json:"nome"`
	Street string `json:"logradouro,omitempty"`
	City   string `json:"cidade,omitempty"`
	State  string `json:"uf,omitempty"`
	Zip    string `json:"cep,omitempty"`
}

type chargeAmount struct {
	Original string `json:"original"`
}

type chargePayload struct {
	Calendar     calendar     `json:"calendario"`
	Debtor       *debtor      `json:"devedor,omitempty"`
	Amount       chargeAmount `json:"valor"`
	Key          string       `json:"chave"`
	PayerRequest string       `json:"solicitacaoPagador,omitempty"`
}

type chargeLocation struct {
	ID       int64  `json:"id"`
	Location string `json:"location"`
}

type pixPayment struct {
	EndToEndID string `json:"endToEndId"`
	TxID       string `json:"txid"`
	Amount     string `json:"valor"`
	Timestamp  string `json:"horario"`
	PayerInfo  string `json:"infoPagador"`
}

type chargeResponse struct {
	TxID          string         `json:"txid"`
	Status        string         `json:"status"`
	Calendar      calendar       `json:"calendario"`
	Amount        chargeAmount   `json:"valor"`
	Key           string         `json:"chave"`
	PixCopiaECola string         `json:"pixCopiaECola"`
	Loc           chargeLocation `json:"loc"`
	Pix           []pixPayment   `json:"pix"`
}

type qrcodeResponse struct {
	QRCode      string `json:"qrcode"`
	ImageBase64 string `json:"imagemQrcode"`
}

// apiError is the provider's RFC 7807-style problem document.
type apiError struct {
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Violations []struct {
		Reason   string `json:"razao"`
		Property string `json:"propriedade"`
	} `json:"violacoes"`
}
