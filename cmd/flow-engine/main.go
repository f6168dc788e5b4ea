package main

import "github.com/LENAX/flow-engine/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
