// Package main is the entry point for crudkit.
package main

func main() {
	Execute()
}
