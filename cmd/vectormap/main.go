package main

import "github.com/MeKo-Tech/vectormap/internal/cmd"

func main() {
	cmd.Execute()
}
