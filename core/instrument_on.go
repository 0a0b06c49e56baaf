//go:build !dispatch_noinstrument

package core

const instrumentationCompiled = true
