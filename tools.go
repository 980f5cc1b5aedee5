//go:build tools
// +build tools

// Package tools pins the linter and the ginkgo test runner in go.mod so
// `go run` uses the same versions everywhere.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "github.com/onsi/ginkgo/ginkgo"
)
