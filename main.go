package main

import (
	"github.com/windvane/booksource/cmd"
)

func main() {
	cmd.Execute()
}
