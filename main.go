package main

import "github.com/meridian-cd/meridian/cmd/root"

func main() {
	root.Execute()
}
