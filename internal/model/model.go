package model

import (
	"strings"
	"time"
)

// Event is a cost-split event. The deletion secret never leaves the store,
// only its hash is kept.
type Event struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Modality    string    `json:"modality,omitempty"`
	Value       Money     `json:"value"`
	PeopleCount int       `json:"people_count"`
	Address     string    `json:"address"`
	Date        string    `json:"date"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PerPersonShare is the display share of the event value. It is never persisted.
func (e Event) PerPersonShare() Money {
	return e.Value.Split(e.PeopleCount)
}

// Missing reports how many confirmations are still needed to reach PeopleCount.
// It goes negative when the event is oversubscribed.
func (e Event) Missing(confirmed int) int {
	return e.PeopleCount - confirmed
}

// Participant is a confirmed entry. TxID is the txid of the payment request
// whose settlement produced it.
type Participant struct {
	TxID        string    `json:"txid"`
	DisplayName string    `json:"nome"`
	EventID     int64     `json:"event_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// PaymentRequest is one issued PIX charge. Every participation attempt gets
// its own request and txid.
type PaymentRequest struct {
	TxID         string    `json:"txId"`
	BRCode       string    `json:"brCode"`
	EventID      int64     `json:"eventId"`
	DisplayName  string    `json:"displayName"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ChannelToken string    `json:"channelToken,omitempty"`
}

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusSettled PaymentStatus = "settled"
	StatusExpired PaymentStatus = "expired"
)

// StatusMessage is the push channel wire message.
type StatusMessage struct {
	TxID   string        `json:"txId"`
	Status PaymentStatus `json:"status"`
}

// IsSettled reports whether the message is a terminal settlement.
func (m StatusMessage) IsSettled() bool {
	return m.Status == StatusSettled
}

// NormalizeName trims a display name and fails with a ValidationError when
// nothing is left.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "nome", Reason: "must not be empty"}
	}
	if len([]rune(name)) > 80 {
		return "", &ValidationError{Field: "nome", Reason: "must be at most 80 characters"}
	}
	return name, nil
}

// NewEvent is the create-event form. Password becomes the deletion secret.
type NewEvent struct {
	Description string `json:"description"`
	Modality    string `json:"modality"`
	Value       Money  `json:"value"`
	Date        string `json:"date"`
	Address     string `json:"address"`
	PeopleCount int    `json:"people_count"`
	Image       string `json:"image"`
	Password    string `json:"password"`
}

func (n NewEvent) Validate() error {
	switch {
	case strings.TrimSpace(n.Description) == "":
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	case n.Value <= 0:
		return &ValidationError{Field: "value", Reason: "must be positive"}
	case n.PeopleCount <= 0:
		return &ValidationError{Field: "people_count", Reason: "must be positive"}
	case n.Password == "":
		return &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	return nil
}
