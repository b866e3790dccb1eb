// Package main provides the speakerid CLI.
//
// Usage:
//
//	speakerid [flags] <command> [args]
//
// Commands:
//
//	enroll     - record and enroll the training clips of one user
//	recognize  - record a test clip and identify the speaker
//	users      - list enrolled users
//	health     - check the backend
//	history    - show recent attempts
//	devices    - list audio input devices
//	serve      - run the browser control server
//	config     - configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.giztoy/speakerid/
//	Use 'speakerid config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/speakerid/cmd/speakerid/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
