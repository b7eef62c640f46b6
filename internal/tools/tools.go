//go:build tools

// Package tools pins developer-only static-analysis binaries in go.mod so
// `go mod tidy` does not drop them; nothing here is imported by runtime code.
package tools

import (
	_ "golang.org/x/lint/golint"
	_ "honnef.co/go/tools/cmd/staticcheck"
)
