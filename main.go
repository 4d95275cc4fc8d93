package main

import "github.com/jakeburden/interest.systems/cmd"

func main() {
	cmd.Execute()
}
