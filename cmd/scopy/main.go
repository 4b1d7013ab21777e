// Command scopy is the reference CLI over the clipboard-history core.
package main

import "github.com/suehn/scopy/internal/cli"

func main() {
	cli.Execute()
}
