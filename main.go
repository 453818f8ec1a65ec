package main

import "github.com/Yates-Labs/lectern/cmd"

func main() {
	cmd.Execute()
}
