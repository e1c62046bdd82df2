// Package services implements the external collaborators of the pulsemix pipeline.
//
// # Metric provider
//
// [WhoopSource] fetches the latest recovery, cycle, and sleep records for a user. Every
// request goes through an authenticated doer (auth.Manager) so expiry refresh and the single
// refresh-and-retry on 401 happen outside this package. Cycle and sleep are optional: a 404 on
// either leaves that part of the payload out.
//
// # Catalog
//
// [SpotifyCatalog] searches tracks and persists playlists. Requests are rate limited and
// 429/5xx responses are retried with exponential backoff that honors Retry-After. A 401 is
// never retried and surfaces as [shared.ErrUnauthorized] so the resolver can stop its chain.
//
// # Enrichment
//
// [OllamaEnricher] asks a local Ollama model, in JSON mode, for a mood hint derived from the
// aggregated metrics and optional context text. Output that does not decode is an error.
package services
