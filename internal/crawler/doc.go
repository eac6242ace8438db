// Package crawler implements the per-site crawl state machine: warm-up
// navigation, session rotation, list and detail fetches with retry, and the
// shared types (stubs, articles, fetch requests) the rest of the pipeline
// consumes.
package crawler
