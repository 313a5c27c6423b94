package main

import "github.com/restitch/restitch/cmd"

func main() {
	cmd.Execute()
}
