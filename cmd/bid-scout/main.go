package main

import (
	_ "time/tzdata"

	"github.com/pfrederiksen/bid-scout/internal/cli"
)

func main() {
	cli.Execute()
}
