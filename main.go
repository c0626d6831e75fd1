package main

import "github.com/kiesman99/imgdice/cmd"

func main() {
	cmd.Execute()
}
