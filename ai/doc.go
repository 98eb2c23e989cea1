// Package ai defines the contracts for the external language-model
// services the retrieval pipeline orchestrates: text embedding and
// prompt completion. Concrete implementations live in subpackages
// (openai for OpenAI-compatible APIs, mock for tests).
package ai
