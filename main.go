package main

import "github.com/crystaldolphin/companion/cmd"

func main() {
	cmd.Execute()
}
