// Command alerter polls the configured Patreon pages in a loop and logs or
// sends an alert when a watched tier becomes available.
package main

import "os"

func main() {
	os.Exit(execute())
}
