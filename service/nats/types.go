package nats

import (
	"time"

	"github.com/tipjarhq/tipjar/service/stacks"
)

// TipEvent is a newly observed tip published to NATS. Events go to the
// subject "tips.{id}" in JetStream.
type TipEvent struct {
	ID          uint64 `json:"id"`
	Tipper      string `json:"tipper"`
	Amount      uint64 `json:"amount"` // microSTX
	Message     string `json:"message,omitempty"`
	BlockHeight uint64 `json:"block_height"`

	PublishedAt time.Time `json:"published_at"`
}

// FromTip converts a contract tip record to a TipEvent for publishing.
func FromTip(tip *stacks.Tip) *TipEvent {
	return &TipEvent{
		ID:          tip.ID,
		Tipper:      tip.Tipper,
		Amount:      tip.Amount,
		Message:     tip.Message,
		BlockHeight: tip.BlockHeight,
		PublishedAt: time.Now().UTC(),
	}
}
