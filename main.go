package main

import "github.com/claude-swarm/orchestrator/cmd"

func main() {
	cmd.Execute()
}
