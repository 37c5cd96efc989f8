package main

import (
	"github.com/debugbar-collector/cmd/debugbar"
)

func main() {
	debugbar.Execute()
}
