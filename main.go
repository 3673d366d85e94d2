package main

import "github.com/kiln-build/kiln/cmd"

func main() {
	cmd.Execute()
}
