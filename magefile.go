//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName         = "wireproxyman"
	srcDir             = "./src/cmd/wireproxyman"
	binDir             = "bin"
	coverageDir        = "coverage"
	defaultTestTimeout = "10m"
	versionPkg         = "github.com/hoangvu/wireproxyman/src/cmd/wireproxyman/commands"
)

// Default target runs all checks and builds.
var Default = All

// getVersion derives the build version from git, falling back to "dev".
func getVersion() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || out == "" {
		return "dev"
	}
	return out
}

// All runs fmt, lint, and test in dependency order, then builds.
func All() error {
	mg.Deps(Fmt, Lint, Test)
	return Build()
}

// Build compiles the wireproxyman binary for the current platform.
func Build() error {
	fmt.Println("Building", binaryName+"...")

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", binDir, err)
	}

	out := filepath.Join(binDir, binaryName)
	if runtime.GOOS == "windows" {
		out += ".exe"
	}

	ldflags := fmt.Sprintf("-X %s.Version=%s", versionPkg, getVersion())
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, srcDir); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Printf("Build complete: %s (version %s)\n", out, getVersion())
	return nil
}

// BuildAll cross-compiles for the usual platforms.
func BuildAll() error {
	platforms := []struct{ goos, goarch string }{
		{"linux", "amd64"},
		{"linux", "arm64"},
		{"darwin", "amd64"},
		{"darwin", "arm64"},
		{"windows", "amd64"},
	}

	ldflags := fmt.Sprintf("-X %s.Version=%s", versionPkg, getVersion())
	for _, p := range platforms {
		out := filepath.Join(binDir, fmt.Sprintf("%s-%s-%s", binaryName, p.goos, p.goarch))
		if p.goos == "windows" {
			out += ".exe"
		}
		fmt.Printf("Building %s/%s...\n", p.goos, p.goarch)
		env := map[string]string{"GOOS": p.goos, "GOARCH": p.goarch, "CGO_ENABLED": "0"}
		if err := sh.RunWithV(env, "go", "build", "-ldflags", ldflags, "-o", out, srcDir); err != nil {
			return fmt.Errorf("build for %s/%s failed: %w", p.goos, p.goarch, err)
		}
	}

	fmt.Println("Build complete for all platforms!")
	return nil
}

// Test runs unit tests.
func Test() error {
	fmt.Println("Running unit tests...")

	timeout := os.Getenv("TEST_TIMEOUT")
	if timeout == "" {
		timeout = defaultTestTimeout
	}

	args := []string{"test", "-v", "-timeout=" + timeout}
	if testName := os.Getenv("TEST_NAME"); testName != "" {
		args = append(args, "-run="+testName)
	}
	args = append(args, "./src/...")

	return sh.RunV("go", args...)
}

// TestCoverage runs tests with a coverage report.
func TestCoverage() error {
	fmt.Println("Running tests with coverage...")

	if err := os.MkdirAll(coverageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create coverage directory: %w", err)
	}

	coverageOut := filepath.Join(coverageDir, "coverage.out")
	coverageHTML := filepath.Join(coverageDir, "coverage.html")

	if err := sh.RunV("go", "test", "-coverprofile="+coverageOut, "./src/..."); err != nil {
		return fmt.Errorf("tests failed: %w", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-html="+coverageOut, "-o", coverageHTML); err != nil {
		return fmt.Errorf("failed to generate HTML coverage: %w", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func="+coverageOut); err != nil {
		return fmt.Errorf("failed to display coverage summary: %w", err)
	}

	fmt.Println("Coverage report:", coverageHTML)
	return nil
}

// Lint runs golangci-lint on the codebase.
func Lint() error {
	fmt.Println("Running golangci-lint...")
	if err := sh.RunV("golangci-lint", "run", "./..."); err != nil {
		fmt.Println("Linting failed. Ensure golangci-lint is installed:")
		fmt.Println("    go install github.com/golangci/golangci-lint/cmd/golangci-lint@latest")
		return err
	}
	return nil
}

// Fmt formats all Go code using gofmt.
func Fmt() error {
	fmt.Println("Formatting code...")
	return sh.RunV("gofmt", "-w", "-s", "./src")
}

// Clean removes build artifacts and coverage reports.
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	for _, dir := range []string{binDir, coverageDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	return nil
}
