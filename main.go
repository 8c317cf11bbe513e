package main

import "github.com/himanstore/dmpilot/cmd"

func main() {
	cmd.Execute()
}
