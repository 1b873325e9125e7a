package main

import "github.com/AbhishekR5/Build-LLM/cmd"

func main() {
	cmd.Execute()
}
