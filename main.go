/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "yap/cmd"

func main() {
	cmd.Execute()
}
