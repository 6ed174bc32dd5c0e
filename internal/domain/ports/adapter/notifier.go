package adapter

import "context"

// AlertNotifier delivers operator alerts (job failures, sweeper recoveries).
type AlertNotifier interface {
	Notify(ctx context.Context, text string) error
}
