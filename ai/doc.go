// Package ai defines the embedding capability consumed by the report
// pipeline, plus its configuration. Concrete providers live in
// subpackages: openai for OpenAI-compatible embedding services, mock
// for a deterministic local substitute used in tests and simulation
// mode.
package ai
