// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"github.com/luxfi/pubsub"

	"github.com/luxfi/vault/events"
)

type eventFilterer struct {
	event events.Event
}

// NewEventFilterer wraps an event for delivery on the pubsub feed.
// Subscribers with an address filter receive the events whose actor or
// subject matches.
func NewEventFilterer(e events.Event) pubsub.Filterer {
	return &eventFilterer{event: e}
}

// Filter implements pubsub.Filterer.
func (f *eventFilterer) Filter(filters []pubsub.Filter) ([]bool, interface{}) {
	resp := make([]bool, len(filters))
	actor := f.event.Actor[:]
	subject := f.event.Subject[:]
	for i, filter := range filters {
		resp[i] = filter.Check(actor) || filter.Check(subject)
	}
	return resp, f.event
}
