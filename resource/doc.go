// Package resource governs the resources a page manager may consume.
//
//	┌─────────────────┬─────────────────┬─────────────────────────┐
//	│  Memory Limit   │  Background     │  IO Rate Limiter        │
//	│  (fail-fast)    │  Workers (sem)  │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  resident page  │  archive frame  │  page flush writes      │
//	│  frames + read  │  compression    │                         │
//	│  cache          │                 │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// Memory acquisition never blocks: a page allocation or attach that would
// exceed the limit fails with ErrMemoryLimitExceeded and the caller is
// expected to flush (releasing dirty frames) or abort its transaction.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   64 << 20,
//	    IOLimitBytesPerSec: 32 << 20,
//	})
package resource
