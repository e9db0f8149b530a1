package main

import "github.com/jmcleod/suilink/cmd/suilink/cmd"

func main() {
	cmd.Execute()
}
