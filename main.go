// The notebase binary serves the NoteBase API and runs the indexing worker.
package main

import (
	"log"

	"notebase.evalgo.org/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
