// Package engine drives per-entity save scheduling.
//
// Each entity moves through idle -> pending -> committing and back.
// Immediate triggers commit synchronously, deferred triggers arm a
// per-entity countdown, cancel tears the countdown down, and a
// recurring sweep re-evaluates every known entity so an eligible one is
// eventually saved even without discrete events.
//
// All timer resources live in the shared registry; the engine never
// starts or stops a timer it did not acquire there.
package engine
