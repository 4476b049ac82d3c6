package main

import "github.com/bryanchriswhite/FramePacer/cmd/framepacer/commands"

func main() {
	commands.Execute()
}
