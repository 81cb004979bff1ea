package main

import "github.com/nfrund/questy/cmd/questy/cmd"

func main() {
	cmd.Execute()
}
