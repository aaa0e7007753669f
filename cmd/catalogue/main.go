// Package main provides the catalogue maintenance CLI: importing records,
// printing store statistics and publishing snapshots to R2.
package main

func main() {
	Execute()
}
