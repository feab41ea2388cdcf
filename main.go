package main

import (
	"DhammaFM/cmd"
)

func main() {
	cmd.Execute()
}
