// Package mock provides a deterministic ai.Embedder test double.
//
// Identical input text always produces the identical vector, which
// makes it suitable both for unit tests and as the pipeline's explicit
// embedding simulation mode when no real provider is configured.
package mock
