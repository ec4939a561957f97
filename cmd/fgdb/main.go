// Command fgdb manages a content-addressed function graph database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/fgdb/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
