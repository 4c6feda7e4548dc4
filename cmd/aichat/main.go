package main

import "github.com/zhouzirui/aichat/internal/commands"

func main() {
	commands.Execute()
}
