/*
Package pubsub fans out mutation events to per-collection subscribers so an
HTTP client can watch one collection change in near-real time (typically via
an SSE handler) without a global event firehose.

# Architecture

	┌────────────────────── REGISTRY ───────────────────────────┐
	│                                                             │
	│  collection "orders"  ──▶  Broadcaster ──▶ sub 1 (buf 20000)│
	│                                        └─▶ sub 2 (buf 20000)│
	│  collection "users"   ──▶  Broadcaster ──▶ sub 3 (buf 20000)│
	│                                                             │
	│  Registry.For creates a Broadcaster on first use;          │
	│  Broadcaster evicts itself once its last subscriber leaves. │
	└─────────────────────────────────────────────────────────────┘

Delivery is non-blocking and best-effort per subscriber: a full buffer gets
a Lagged notification in place of the event it couldn't hold, rather than
stalling the publisher or silently vanishing. Each collection's fan-out is
fully independent, so one slow subscriber on one collection cannot affect
delivery on any other.
*/
package pubsub
