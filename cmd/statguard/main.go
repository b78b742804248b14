// Command statguard runs the admission guard server.
package main

import "github.com/ryanranft/statguard/cmd/statguard/cmd"

func main() {
	cmd.Execute()
}
