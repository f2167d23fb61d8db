package main

import (
	cmd "github.com/rohmanhakim/mapfreeze/internal/cli"
)

func main() {
	cmd.Execute()
}
