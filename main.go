package main

import (
	"github.com/BioHazard786/Coderoom/cmd"
	"github.com/BioHazard786/Coderoom/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
