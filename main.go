package main

import "github.com/agentic-research/yieldtree/cmd"

func main() {
	cmd.Execute()
}
