// Copyright (c) 2026 Aggravator Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command aggravator is a file based dynamic inventory script for
// Ansible. It merges the YAML/JSON sources declared for an environment
// in a root config into one inventory document and emits it as JSON.
package main

import (
	"os"
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
