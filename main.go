package main

import "github.com/lukman83/pricealert/cmd"

func main() {
	cmd.Execute()
}
