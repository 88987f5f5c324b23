package notifications

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	user := uuid.New()

	Multi{a, Nop{}, b}.Dispatch(Notification{Recipient: user, Kind: BookingApproved})

	assert.Equal(t, []Kind{BookingApproved}, a.Kinds(user))
	assert.Equal(t, []Kind{BookingApproved}, b.Kinds(user))
}

func TestBodyListsFieldsInOrder(t *testing.T) {
	body := bodyFor(Notification{Kind: PenaltyApplied, Fields: map[string]string{
		"penalty_amount": "500",
		"booking_id":     "b-1",
	}})

	assert.Contains(t, body, "A late-cancellation fee was applied")
	assert.Less(t, strings.Index(body, "booking id"), strings.Index(body, "penalty amount"))
}

func TestNewBrevoServiceRequiresSender(t *testing.T) {
	assert.Nil(t, NewBrevoService("key", "", "Studio"))
	assert.NotNil(t, NewBrevoService("key", "noreply@example.com", "Studio"))
}
