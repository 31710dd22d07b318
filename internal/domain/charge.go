package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeKind distinguishes immediate charges (cob) from due-date charges (cobv).
type ChargeKind string

const (
	ChargeKindImmediate ChargeKind = "immediate"
	ChargeKindDueDate   ChargeKind = "due_date"
)

// ChargeStatus is the internal three-state charge lifecycle.
// The bank's native status vocabulary is mapped onto it; anything
// unrecognized is treated as pending.
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusPaid      ChargeStatus = "paid"
	ChargeStatusCancelled ChargeStatus = "cancelled"
)

// Payer identifies who the charge is issued against.
// CPF for individuals, CNPJ for companies; when both are set CNPJ wins.
// Address fields are only required by the bank for due-date charges.
type Payer struct {
	Name   string `json:"name" validate:"required"`
	CPF    string `json:"cpf,omitempty"`
	CNPJ   string `json:"cnpj,omitempty"`
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// Document returns the effective tax id (CNPJ overrides CPF).
func (p Payer) Document() string {
	if p.CNPJ != "" {
		return p.CNPJ
	}
	return p.CPF
}

// ChargeRequest is the canonical input for charge creation.
// Amount is a decimal at the boundary; any string/number coercion is the
// routing layer's problem, never the core's.
type ChargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Payer       Payer           `json:"payer" validate:"required"`

	// Immediate charges: seconds until the charge expires.
	ExpirySeconds int `json:"expirySeconds,omitempty"`

	// Due-date charges: due date (YYYY-MM-DD) and how many days after it
	// the charge can still be paid.
	DueDate      string `json:"dueDate,omitempty"`
	DaysAfterDue int    `json:"daysAfterDue,omitempty"`
}

// ReceivedPayment is one settled PIX payment attached to a charge.
type ReceivedPayment struct {
	EndToEndID string          `json:"endToEndId"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     time.Time       `json:"paidAt"`
	PayerInfo  string          `json:"payerInfo,omitempty"`
}

// ChargeResult is what the bank reports back for a charge.
type ChargeResult struct {
	TxID             string            `json:"txid"`
	Status           ChargeStatus      `json:"status"`
	RawStatus        string            `json:"rawStatus,omitempty"`
	Amount           decimal.Decimal   `json:"amount"`
	QRCodePayload    string            `json:"qrCodePayload,omitempty"`
	QRCodeImage      string            `json:"qrCodeImage,omitempty"`
	LocationID       int64             `json:"locationId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	ExpirySeconds    int               `json:"expirySeconds,omitempty"`
	DueDate          string            `json:"dueDate,omitempty"`
	DaysAfterDue     int               `json:"daysAfterDue,omitempty"`
	ReceivedPayments []ReceivedPayment `json:"receivedPayments,omitempty"`
}

// ChargeRecord is the persisted view of a charge, owned by the caller of
// the bank client (the charges service), not by the core.
type ChargeRecord struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	TxID          string          `json:"txid"`
	Kind          ChargeKind      `json:"kind"`
	Status        ChargeStatus    `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	PayerName     string          `json:"payerName"`
	PayerDocument string          `json:"payerDocument"`
	QRCodePayload string          `json:"qrCodePayload,omitempty"`
	DueDate       string          `json:"dueDate,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
