// Command modcore runs the moderation bot and manages its audit bindings.
package main

import (
	"os"
)

func main() {
	os.Exit(execute())
}
