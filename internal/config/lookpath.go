package config

import "os/exec"

// lookPath is a thin indirection over exec.LookPath so validation
// logic can be exercised in tests without touching the real PATH.
var lookPath = exec.LookPath
