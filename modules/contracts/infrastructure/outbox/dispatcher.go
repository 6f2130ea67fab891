package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iota-uz/contracts/modules/contracts/domain/events"
	"github.com/iota-uz/contracts/pkg/eventbus"
	"github.com/iota-uz/contracts/pkg/outbox"
)

// Dispatcher decodes relayed outbox rows and re-publishes them on the
// in-process event bus.
type Dispatcher struct {
	bus eventbus.EventBusWithError
}

func NewDispatcher(bus eventbus.EventBusWithError) *Dispatcher {
	return &Dispatcher{bus: bus}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	_ = ctx
	if d == nil || d.bus == nil {
		return fmt.Errorf("contracts outbox dispatcher: bus is nil")
	}

	switch msg.Meta.Topic {
	case events.TopicContractSubmittedV1:
		var ev events.SubmittedEventV1
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("contracts outbox dispatcher: decode payload: %w", err)
		}
		return d.bus.PublishE(&msg.Meta, &ev)
	case events.TopicContractTransitionV1:
		var ev events.TransitionEventV1
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("contracts outbox dispatcher: decode payload: %w", err)
		}
		return d.bus.PublishE(&msg.Meta, &ev)
	case events.TopicContractDocumentReadyV1:
		var ev events.DocumentReadyEventV1
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("contracts outbox dispatcher: decode payload: %w", err)
		}
		return d.bus.PublishE(&msg.Meta, &ev)
	default:
		return fmt.Errorf("contracts outbox dispatcher: unsupported topic %q", msg.Meta.Topic)
	}
}
