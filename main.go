package main

import "github.com/etas-contrib/score-docs-as-code/cmd"

func main() {
	cmd.Execute()
}
