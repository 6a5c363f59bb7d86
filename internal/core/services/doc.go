// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - KnowledgeService: ingestion, retrieval, deletion and repair
//   - EmbeddingProvider: cache, remote service and local fallback behind one port
//   - SettingsService: TOML settings with KBASE_* environment overrides
//   - Autosaver: periodic and final flush of the persistent stores
package services
