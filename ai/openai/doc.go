// Package openai provides ai.Embedder and ai.Completer implementations
// backed by OpenAI-compatible HTTP APIs via langchaingo. It works against
// the public OpenAI API as well as local servers (Ollama, LocalAI, vLLM)
// that speak the same protocol.
package openai
