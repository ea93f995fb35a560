// Package broadcast provides type-safe, lossless fan-out of values to
// multiple subscribers.
//
// The package uses Go generics so messages stay strongly typed from the
// publisher to every reader.
//
// Basic usage:
//
//	count := broadcast.NewBehaviorSubject(0)
//	defer count.Close()
//
//	ctx := context.Background()
//	sub := count.Subscribe(ctx)
//	defer sub.Close()
//
//	count.Publish(3)
//
//	for msg := range sub.Receive(ctx) {
//		fmt.Println(msg.Data) // 0, then 3
//	}
//
// Unlike a drop-on-full broadcaster, a Subject queues messages per
// subscriber without bound, so a reader that falls behind still sees every
// value in order. Readers that stop reading must Close their subscriber.
//
// Subscribers are cleaned up when:
//   - the subscriber's context is cancelled
//   - Close is called on the subscriber
//   - the subject is closed (queued messages are delivered first)
package broadcast
