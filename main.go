package main

import "github.com/andresmejia3/recallme/cmd"

func main() {
	cmd.Execute()
}
