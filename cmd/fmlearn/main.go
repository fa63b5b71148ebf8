// Command fmlearn serves algorithm and metric recommendations learned from
// past model runs.
package main

import "github.com/mesh-intelligence/fmlearn/internal/cli"

func main() {
	cli.Execute()
}
