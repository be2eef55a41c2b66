// Package openai implements ai.Embedder for OpenAI-compatible APIs
// (Ollama, LocalAI, vLLM, OpenAI) via langchaingo.
package openai
