// Package clock provides the countdown primitive the scheduler runs on.
//
// A Timer is either one-shot (delay, then fire once) or recurring
// (fire every interval). One-shot timers are plain time.Timer; recurring
// timers are cron "@every" entries so that interval sweeps and cron-spec
// sweeps share one machinery.
package clock
