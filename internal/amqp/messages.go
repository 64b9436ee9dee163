package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types carried in the AMQP Type property.
const (
	TypeMealSync      = "meal.sync"
	TypeMemberDeleted = "member.deleted"
)

// ErrMalformed marks a delivery that can never be processed and must not be
// requeued.
var ErrMalformed = errors.New("malformed message")

// MealSyncMessage asks the worker to mirror one (member, date) entry to the
// ledger. The worker reads the current entry from the store, so a stale
// message still syncs the latest state.
type MealSyncMessage struct {
	TeamMemberID string    `json:"teamMemberId"`
	Date         string    `json:"date"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewMealSyncMessage(teamMemberID, date string) *MealSyncMessage {
	return &MealSyncMessage{
		TeamMemberID: teamMemberID,
		Date:         date,
		Timestamp:    time.Now().UTC(),
	}
}

// MemberDeletedMessage asks the worker to drop every ledger row of a member.
type MemberDeletedMessage struct {
	TeamMemberID string    `json:"teamMemberId"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewMemberDeletedMessage(teamMemberID string) *MemberDeletedMessage {
	return &MemberDeletedMessage{
		TeamMemberID: teamMemberID,
		Timestamp:    time.Now().UTC(),
	}
}

// Handler processes decoded messages.
type Handler interface {
	HandleMealSync(ctx context.Context, msg *MealSyncMessage) error
	HandleMemberDeleted(ctx context.Context, msg *MemberDeletedMessage) error
}

// Dispatch decodes body according to msgType and hands it to h.
func Dispatch(ctx context.Context, msgType string, body []byte, h Handler) error {
	switch msgType {
	case TypeMealSync:
		var msg MealSyncMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if msg.TeamMemberID == "" || msg.Date == "" {
			return fmt.Errorf("%w: meal sync without member or date", ErrMalformed)
		}
		return h.HandleMealSync(ctx, &msg)
	case TypeMemberDeleted:
		var msg MemberDeletedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if msg.TeamMemberID == "" {
			return fmt.Errorf("%w: member deleted without member", ErrMalformed)
		}
		return h.HandleMemberDeleted(ctx, &msg)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, msgType)
	}
}
