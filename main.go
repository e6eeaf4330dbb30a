// Command misim is the CLI entrypoint; it delegates to the Cobra root
// command in cmd/root.go.
package main

import (
	"github.com/misim/misim/cmd"
)

func main() {
	cmd.Execute()
}
