// Package wrapper carries the generated guest-side sources: the shared
// JavaScript shim, the Node subprocess wrapper and the Python bootstrap.
// The shim keeps one script body valid across the in-process interpreter
// and the subprocess paths.
package wrapper

import _ "embed"

//go:embed assets/shim.js
var shimJS string

//go:embed assets/node_wrapper.js
var nodeWrapperJS string

//go:embed assets/bootstrap.py
var bootstrapPy string

// Shim returns the JavaScript source defining __buildVoiden for the
// in-process interpreter.
func Shim() string { return shimJS }

// Node returns the complete wrapper program handed to the Node subprocess
// via -e: the shim plus the stdio loop.
func Node() string { return shimJS + "\n" + nodeWrapperJS }

// PythonBootstrap returns the one-shot bootstrap program handed to the
// Python subprocess via -c.
func PythonBootstrap() string { return bootstrapPy }
