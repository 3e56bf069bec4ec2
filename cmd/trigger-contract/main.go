// Command trigger-contract checks the terminal-update classifier against
// conformance fixtures and classifies single updates from the command line.
package main

func main() {
	Execute()
}
