package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// loadDotEnv loads the first .env found from the working directory up to
// the filesystem root. Existing variables are not overridden.
func loadDotEnv() {
	if runningUnderGoTest() {
		return
	}
	path, err := findDotEnv()
	if err != nil {
		log.Debugf("Search .env: %v", err)
		return
	}
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.WithField("dotenv", path).Warnf("Load .env: %v", err)
		return
	}
	log.WithField("dotenv", path).Debug("Loaded .env")
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

func findDotEnv() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(wd, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			return "", nil
		}
		wd = parent
	}
}
