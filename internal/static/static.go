package static

import _ "embed"

// APIGuide contains the embedded API guide for operators and integrations.
//
//go:embed api.md
var APIGuide string
