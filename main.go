// The main package for the newsdesk-sync executable.
package main

import (
	"github.com/JakeFAU/newsdesk-sync/cmd"
)

func main() {
	cmd.Execute()
}
