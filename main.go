package main

import "github.com/repotorpedo/torpedo/cmd/root"

func main() {
	root.Execute()
}
