// Entrypoint for the Cobra CLI; handling lives in cmd/root.go.

package main

import (
	"github.com/tensorbay/aegis/cmd"
)

func main() {
	cmd.Execute()
}
