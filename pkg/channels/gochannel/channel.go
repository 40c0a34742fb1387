// Package gochannel provides the in-memory channel used by default and in
// tests; it needs no external broker.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// runEventBuffer bounds the in-memory channel. A run emits a handful of
// lifecycle events and runs are single-flight, so a small buffer covers
// bursts while a stalled consumer surfaces quickly instead of hiding behind
// a deep queue.
const runEventBuffer = 64

// CreateChannel creates a GoChannel-based publisher and subscriber. The same
// instance implements both sides.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            runEventBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return pubSub, pubSub, nil
}

// CreateTestChannel is a smaller, blocking setup for deterministic tests.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            10,
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
