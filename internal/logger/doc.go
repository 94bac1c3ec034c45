// Package logger provides structured logging on top of Zap.
// It exposes context-aware, package-level helpers so request-scoped fields
// attached with With travel through call chains without plumbing a logger
// argument everywhere. The shared level can be changed at runtime.
package logger
