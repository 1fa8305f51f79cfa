package notify

import (
	"context"
	"log"
	"time"

	"github.com/shouryapratikofficial/hostel-pool/pkg/store"
)

const dispatchBatchSize = 50

// Dispatcher drains queued notifications and emails them out. Delivery is
// at-least-once: a notification is only marked sent after the email call
// succeeds, and failures are retried on the next tick. The ledger never
// waits on delivery.
type Dispatcher struct {
	storage  store.Storage
	sender   *EmailSender
	interval time.Duration
}

// NewDispatcher creates a dispatcher polling at the given interval.
func NewDispatcher(s store.Storage, sender *EmailSender, interval time.Duration) *Dispatcher {
	return &Dispatcher{storage: s, sender: sender, interval: interval}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchPending()
		}
	}
}

func (d *Dispatcher) dispatchPending() {
	notifications, err := d.storage.GetUnsentNotifications(dispatchBatchSize)
	if err != nil {
		log.Printf("notifier: failed to load pending notifications: %v", err)
		return
	}

	for _, n := range notifications {
		member, err := d.storage.GetMember(n.MemberID)
		if err != nil {
			log.Printf("notifier: failed to load member for notification %s: %v", n.ID, err)
			continue
		}
		if err := d.sender.Send(member.Email, member.Name, "Hostel pool update", n.Message); err != nil {
			log.Printf("notifier: failed to send notification %s: %v", n.ID, err)
			continue
		}
		if err := d.storage.MarkNotificationSent(n.ID, time.Now()); err != nil {
			log.Printf("notifier: failed to mark notification %s sent: %v", n.ID, err)
		}
	}
}
