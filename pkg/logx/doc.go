// Package logx wraps zerolog behind a small structured-logging API shared by
// every component of the dispatcher. The zero Logger is a safe no-op, which
// keeps optional logging out of constructor signatures.
package logx
