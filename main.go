package main

import (
	"github.com/luma/ramis/cmd"
)

func main() {
	cmd.Execute()
}
