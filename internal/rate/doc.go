// Package rate implements fixed-window request counting on Redis.
//
// The first request in a window sets the counter to 1 and starts the
// window-length expiry; later requests increment without touching the
// expiry. Counts reset by TTL expiry, never by an explicit reset. A burst
// at a window boundary can therefore admit up to twice the limit across the
// boundary; that approximation is accepted.
//
// The limiter fails open: if Redis is unreachable after one retry, requests
// are admitted with the full limit reported as remaining. Availability wins
// over strict enforcement during backend outages.
package rate
