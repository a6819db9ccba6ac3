package main

import "cockpit-alerts/internal/cli"

func main() {
	cli.Execute()
}
