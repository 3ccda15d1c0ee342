// The main package for the prerender executable.
package main

import (
	"os"

	"github.com/JakeFAU/prerender/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
