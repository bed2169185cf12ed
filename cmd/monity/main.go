// Command monity tracks expenses and incomes in two flat text ledgers. With
// arguments it runs one scripted sub-command; without, the interactive menu.
package main

import (
	"context"
	"os"

	"monity/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], cli.Options{}))
}
