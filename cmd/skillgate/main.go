package main

import "github.com/hb-chen/skillgate/cmd"

func main() {
	cmd.Execute()
}
