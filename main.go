package main

import "github.com/KaramelBytes/tablechat/cmd"

func main() {
	cmd.Execute()
}
