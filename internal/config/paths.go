package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains all the filesystem locations used by the application.
// This is the single source of truth for data layout: per-product accumulated
// directories, the temp download area, the extraction scratch area, strategy
// result files and the error ledger.
type Paths struct {
	DataDir     string
	TempDir     string
	ExtractDir  string
	StrategyDir string
	LedgerFile  string
}

const (
	tempDirName    = "temp"
	extractDirName = "xbx_temporary_data"
	ledgerFileName = "error.csv"
)

// NewPaths builds the path layout rooted at the configured data and strategy
// directories. Relative paths are resolved against the working directory.
func NewPaths(dataDir, strategyDir string) (*Paths, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if strategyDir == "" {
		strategyDir = "strategy"
	}

	absData, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	absStrategy, err := filepath.Abs(strategyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve strategy dir: %w", err)
	}

	return &Paths{
		DataDir:     absData,
		TempDir:     filepath.Join(absData, tempDirName),
		ExtractDir:  filepath.Join(absData, extractDirName),
		StrategyDir: absStrategy,
		LedgerFile:  filepath.Join(absData, ledgerFileName),
	}, nil
}

// ProductDir returns the accumulated data directory for a product.
func (p *Paths) ProductDir(product string) string {
	return filepath.Join(p.DataDir, product)
}

// ProductTempDir returns the temp download directory for a product.
// Downloaded archives stay here until the age-based sweep removes them.
func (p *Paths) ProductTempDir(product string) string {
	return filepath.Join(p.TempDir, product)
}

// ProductExtractDir returns the extraction scratch directory for a product.
// It is deleted after every successful sync.
func (p *Paths) ProductExtractDir(product string) string {
	return filepath.Join(p.ExtractDir, product)
}

// EnsureDirectories creates the base directories if they do not exist.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.TempDir, p.ExtractDir, p.StrategyDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureProductDirectories creates the per-product directories used by one
// sync attempt. Idempotent.
func (p *Paths) EnsureProductDirectories(product string) error {
	dirs := []string{
		p.ProductDir(product),
		p.ProductTempDir(product),
		p.ProductExtractDir(product),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
