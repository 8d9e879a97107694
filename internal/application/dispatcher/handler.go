package dispatcher

import (
	"context"

	"github.com/edusuite/school-billing/internal/domain/event"
)

// Handler processes one billing event. A non-nil error aborts a synchronous
// dispatch; async dispatch logs it and moves on.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registration as returned by ListHandlers.
type HandlerInfo struct {
	Name      string
	EventType event.Type
}
