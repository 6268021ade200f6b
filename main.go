package main

import "github.com/audiolibrelab/claudio/cmd"

func main() {
	cmd.Execute()
}
