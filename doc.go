// Package relay provides a reliable local event delivery engine for Go.
//
// Relay is a library, not a service. Capture front-ends embed it to hand
// captured content to a local daemon over HTTP without losing events while
// the daemon is down, restarting or overloaded.
//
// Key features:
//   - At-least-once delivery with idempotent collapse on the daemon side
//   - Durable buffer keyed by event ID with pluggable backends (bbolt, SQLite, Redis, Memory)
//   - Capped exponential backoff with jitter
//   - Health-gated retry loop with a shared, cached probe
//   - Permanent rejections reported once, never retried
//
// Quick start:
//
//	r, err := relay.New(
//	    relay.WithStore(boltStore),
//	    relay.WithChannel("browser-extension"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start(ctx)
//	defer r.Stop(ctx)
//
//	env := envelope.New("browser-extension", "chrome", content,
//	    envelope.WithContentPointer(pageURL),
//	)
//	if _, err := r.Submit(ctx, env); err != nil {
//	    log.Print(err)
//	}
package relay
