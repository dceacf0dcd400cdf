// Package openai provides an ai.Embedder backed by any
// OpenAI-compatible embedding API (OpenAI, Ollama, LocalAI, vLLM).
//
// The implementation uses the langchaingo OpenAI client, so any service
// speaking that wire protocol works unchanged.
package openai
