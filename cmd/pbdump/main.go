package main

import "github.com/wkalt/pbcore/cmd/pbdump/cmd"

func main() {
	cmd.Execute()
}
