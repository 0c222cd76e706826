/**
 * @description
 * This file defines the core domain models for the loan workflow: ledger
 * transactions, feed notifications, and the shared transfer input that both the
 * send and request paths accept. These structs are what the document store
 * persists and what the API layer serializes.
 *
 * @notes
 * - Amounts use `decimal.Decimal` so that loan values survive round-trips
 *   through JSON and the document store without floating-point drift.
 * - JSON tags mirror the stored field names; the notification feed is queried
 *   by `receiverEmail` and `read`, so those names are load-bearing.
 */

package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates the account a loan is drawn from or returned to.
type AccountType string

const (
	AccountChequing AccountType = "chequing"
	AccountSaving   AccountType = "saving"
)

// Direction tags a ledger transaction from the owner's perspective. The same
// loan appears as Send in one ledger and Receive in the counterparty's; it is
// not a global transfer type.
type Direction string

const (
	DirectionSend    Direction = "Send"
	DirectionReceive Direction = "Receive"
)

// NotificationType distinguishes completed-send notices from money requests.
type NotificationType string

const (
	NotificationSend    NotificationType = "Send"
	NotificationRequest NotificationType = "Request"
)

// Transaction is one entry in a user's ledger. Each user owns a private
// collection of these; an accepted request writes one per participant with
// opposite directions and otherwise identical fields.
type Transaction struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	AccountType AccountType     `json:"accountType"`
	ReturnDate  time.Time       `json:"returnDate"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	Timestamp   time.Time       `json:"timestamp"`
}

// TransferDetails is the denormalized payload embedded in a notification at
// creation time. It is never updated afterwards, even if the underlying
// ledger entry is deleted.
type TransferDetails struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	AccountType AccountType     `json:"accountType,omitempty"`
	ReturnDate  time.Time       `json:"returnDate,omitempty"`
	Date        time.Time       `json:"date"`
}

// Notification is one entry in the shared feed. Addressing is by recipient
// email; ReceiverID carries the stable identifier when the directory could
// resolve the email at write time, so a typo'd address is at least detectable.
// Everything except the Read flag is immutable after creation, and Read only
// ever transitions false to true.
type Notification struct {
	ID              string           `json:"id,omitempty"`
	Type            NotificationType `json:"type"`
	SenderID        uuid.UUID        `json:"senderId,omitempty"`
	SenderEmail     string           `json:"senderEmail,omitempty"`
	RequesterID     uuid.UUID        `json:"requesterId,omitempty"`
	RequesterEmail  string           `json:"requesterEmail,omitempty"`
	ReceiverID      uuid.UUID        `json:"receiverId,omitempty"`
	ReceiverEmail   string           `json:"receiverEmail"`
	TransactionInfo *TransferDetails `json:"transactionInfo,omitempty"`
	RequestInfo     *TransferDetails `json:"requestInfo,omitempty"`
	Read            bool             `json:"read"`
	Timestamp       time.Time        `json:"timestamp"`
}

// TransferInput is the field set shared by the send and request operations.
type TransferInput struct {
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	AccountType AccountType     `json:"accountType"`
	ReturnDate  time.Time       `json:"returnDate"`
	Amount      decimal.Decimal `json:"amount"`
}

var (
	ErrInvalidAmount      = errors.New("amount must be a positive decimal")
	ErrInvalidAccountType = errors.New("account type must be chequing or saving")
	ErrMissingName        = errors.New("counterparty name is required")
	ErrMissingEmail       = errors.New("counterparty email is required")
	ErrMissingReturnDate  = errors.New("return date is required")
)

// Validate checks a transfer input before any write is attempted.
func (in TransferInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(in.Email) == "" {
		return ErrMissingEmail
	}
	switch in.AccountType {
	case AccountChequing, AccountSaving:
	default:
		return ErrInvalidAccountType
	}
	if in.ReturnDate.IsZero() {
		return ErrMissingReturnDate
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// AcceptStage tracks how far an accept write sequence has progressed. The
// journal entry for an accept advances through these stages so that a partial
// failure is recoverable instead of silent.
type AcceptStage string

const (
	StagePending         AcceptStage = "pending"
	StageReceiverPosted  AcceptStage = "receiver_posted"
	StageRequesterPosted AcceptStage = "requester_posted"
	StageSettled         AcceptStage = "settled"
)

// AcceptJournalEntry records the intent and progress of one accept so that the
// two ledger writes plus the read-mark are provably retryable from whatever
// intermediate state a failure left behind.
type AcceptJournalEntry struct {
	ID             string          `json:"id,omitempty"`
	NotificationID string          `json:"notificationId"`
	ActorID        uuid.UUID       `json:"actorId"`
	ActorEmail     string          `json:"actorEmail"`
	RequesterID    uuid.UUID       `json:"requesterId"`
	RequesterEmail string          `json:"requesterEmail"`
	Details        TransferDetails `json:"details"`
	Stage          AcceptStage     `json:"stage"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
