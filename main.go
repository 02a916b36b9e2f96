package main

import "github.com/groupcast/groupcast/cmd"

func main() {
	cmd.Execute()
}
