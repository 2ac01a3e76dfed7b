package main

import "github.com/ftl/hamshack/cmd"

func main() {
	cmd.Execute()
}
