// Package manager is the public API of the semantic index.
//
// A Manager combines a vault, a vector store and an embedding provider:
//
//	m, err := manager.New(manager.Options{
//	    Config:   cfg,
//	    Store:    store,
//	    Vault:    v,
//	    Provider: provider,
//	    Logger:   logger,
//	})
//	defer m.Close()
//
//	report, err := m.ProcessVault(ctx)
//	results, err := m.SearchSimilar(ctx, "weekly review", 10)
//
// # Runs
//
// Every run goes through one gate. ProcessVault, RetryFailedFiles and
// ForceRefreshCurrentNamespace fail with ErrRunInProgress when the gate is
// taken; single-file updates wait for it.
//
// Each scope (vault, file, query) moves idle -> running -> success or
// cooldown. A run aborted by a provider error puts its scope into cooldown:
// 30s for an upstream outage, 5m for other transient errors, 6h for license
// errors. Until it expires calls return *CooldownError.
//
// # File events
//
// Creates and renames are processed after CreateDelay, modifications after
// QuietPeriod without further changes. Renames rewrite stored ids in place
// and deletes drop the path's vectors; directory events apply to every
// document below the directory.
//
// # Providers
//
// Switching provider or model never deletes vectors. Documents indexed
// under another namespace report schema-mismatch and are picked up by the
// next run, reusing vectors of the same model where chunk hashes match.
package manager
