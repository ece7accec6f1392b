// Package api implements the JSON HTTP API for document ingestion and
// question answering. It wires session cookies, per-IP rate limiting, CORS,
// and a WebSocket streaming endpoint around the ingest and RAG services.
package api
