package main

import "trendpulse/cmd"

func main() {
	cmd.Execute()
}
