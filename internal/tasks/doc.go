// Package tasks provides the rate limiter and job queue shared by all
// sync operations.
//
// Every adapter declares a rate budget; the limiter keeps one token
// bucket per adapter and wraps remote calls with retry and exponential
// backoff. The queue runs sync jobs with bounded global and per-adapter
// concurrency, FIFO ordering with priority jump, and cooperative
// cancellation.
package tasks
