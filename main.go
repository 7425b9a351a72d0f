package main

import "github.com/slyfoxbot/slyfox/cmd"

func main() {
	cmd.Execute()
}
