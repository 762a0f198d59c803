package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vk/burstgraph/eventbus"
)

func TestPublishDeliversToAllObservers(t *testing.T) {
	b := eventbus.New(nil)
	var got []eventbus.EventType
	b.Subscribe(eventbus.ObserverFunc(func(e eventbus.Event) { got = append(got, e.Type) }))
	b.Subscribe(eventbus.ObserverFunc(func(e eventbus.Event) { got = append(got, e.Type) }))

	b.Publish(eventbus.Event{Type: eventbus.SuperstepStart})

	assert.Equal(t, []eventbus.EventType{eventbus.SuperstepStart, eventbus.SuperstepStart}, got)
}

func TestPublishIsolatesPanickingObserver(t *testing.T) {
	b := eventbus.New(nil)
	var delivered bool
	b.Subscribe(eventbus.ObserverFunc(func(e eventbus.Event) { panic("boom") }))
	b.Subscribe(eventbus.ObserverFunc(func(e eventbus.Event) { delivered = true }))

	assert.NotPanics(t, func() { b.Publish(eventbus.Event{Type: eventbus.NodeError}) })
	assert.True(t, delivered, "a panicking observer must not block delivery to the rest")
}
