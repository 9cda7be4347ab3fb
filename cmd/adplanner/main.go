// adplanner runs the ad planning pipeline from the command line: preview
// grounding, draft or validate plans offline, or generate a plan with the
// configured providers.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
