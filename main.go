package main

import "github.com/bokristoffersson/settings-gateway/cmd"

func main() {
	cmd.Execute()
}
