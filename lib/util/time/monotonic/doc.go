// Package monotonic provides the offset-corrected clock behind the gateway's
// NTP advisory.
//
// The clock-offset monitor periodically measures how far the local wall clock
// drifts from NTP and feeds each measurement into a Clock via SetOffset. Code
// that wants backend-aligned time reads Clock.Now() instead of time.Now();
// the health endpoint does this so operators can spot skew from the API
// without shell access to the host.
//
// The correction never touches the process-local monotonic reading: durations
// computed with time.Since remain immune to wall clock jumps, offset or not.
package monotonic
