package main

import "github.com/foundry/npmstore/cmd/registry-cli/cmd"

func main() {
	cmd.Execute()
}
