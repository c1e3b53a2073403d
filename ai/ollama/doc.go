// Package ollama provides an embedding provider for a native Ollama endpoint.
//
// Unlike ai/openai, which speaks the OpenAI-compatible /v1 API, this package
// uses langchaingo's native Ollama client. Prefer it when the embedding model
// only exposes the native /api/embed route.
package ollama
