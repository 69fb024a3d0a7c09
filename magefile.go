//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target when running mage without arguments.
var Default = Test

// Build compiles all packages.
func Build() error {
	fmt.Println("Building...")
	return sh.Run("go", "build", "./...")
}

// Test runs the test suite.
func Test() error {
	mg.Deps(Build)
	fmt.Println("Running tests...")
	return sh.Run("go", "test", "-race", "./...")
}

// Cover runs the test suite with coverage output.
func Cover() error {
	fmt.Println("Running tests with coverage...")
	if err := sh.Run("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.Run("go", "tool", "cover", "-func=coverage.out")
}

// Lint runs go vet and gofmt checks.
func Lint() error {
	fmt.Println("Linting...")
	if err := sh.Run("go", "vet", "./..."); err != nil {
		return err
	}
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("gofmt needed on:\n%s", out)
	}
	return nil
}

// Tidy tidies the module file.
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}
