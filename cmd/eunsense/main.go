package main

import "github.com/dlwpdl/eunsense-automation-sub000/internal/cli"

func main() {
	cli.Execute()
}
