package main

import (
	"metric-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
