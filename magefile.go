//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target - build both binaries
var Default = Build

var binaries = map[string]string{
	"exectrack-server": "./cmd/server",
	"tracker":          "./cmd/tracker",
}

// Build builds the server and the CLI into bin/
func Build() error {
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	for name, pkg := range binaries {
		fmt.Printf("building %s\n", name)
		if err := sh.RunV("go", "build", "-o", "bin/"+name, pkg); err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
	}
	return nil
}

// Test runs the unit tests with the race detector
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// QA runs formatting, vet and the tests
func QA() error {
	if err := sh.RunV("gofmt", "-l", "-w", "."); err != nil {
		return fmt.Errorf("format check failed: %w", err)
	}
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("vet failed: %w", err)
	}
	mg.Deps(Test)
	return nil
}

// Run starts the server with the in-memory backend
func Run() error {
	mg.Deps(Build)
	env := map[string]string{
		"EXECTRACK_BACKEND":         "memory",
		"EXECTRACK_EXECUTION_STORE": "memory",
	}
	return sh.RunWithV(env, "bin/exectrack-server")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm("bin")
}
