package main

import "github.com/presensia/presensia/cmd"

func main() {
	cmd.Execute()
}
