// Package tasks orchestrates the wearable-to-playlist flow behind the CLI and HTTP layers.
//
// # Core Operations
//
// [Engine] exposes:
//
//  1. [Engine.SyncWearable] : normalize a raw payload, record it, reclassify
//     - Optional enrichment overlays a search query and genres on the snapshot
//     - Enrichment failures are logged and the heuristic mood is kept
//
//  2. [Engine.FetchProviderData] : pull the latest payload from the metric provider
//     - Authenticated through the token lifecycle manager
//     - Unusable credentials surface as [shared.ReauthRequiredError] with an authorization URL
//
//  3. [Engine.ResolvePlaylist] : resolve a mood into tracks, always returning some list
//
//  4. [Engine.SavePlaylist] : persist resolved catalog tracks as a playlist
//
// [Engine.FetchAll] runs provider syncs for several users on a rate-limited worker pool.
//
// # Progress Reporting
//
// Batch operations send [ProgressUpdate] values on an optional channel. Updates use select
// with default to prevent blocking.
package tasks
