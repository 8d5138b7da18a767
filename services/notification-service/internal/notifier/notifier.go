package notifier

import (
	"context"
	"log"
)

// Notifier delivers one message to one recipient. Email, LINE or SMS
// implementations plug in here.
type Notifier interface {
	Notify(ctx context.Context, to, subject, message string) error
}

// ConsoleNotifier logs messages instead of sending them.
type ConsoleNotifier struct{}

func NewConsole() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (c *ConsoleNotifier) Notify(_ context.Context, to, subject, message string) error {
	log.Printf("[notify] to=%s %s :: %s", to, subject, message)
	return nil
}
