// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package version reports the build version of the llmbatchctl binary.
package version

// Version can be overridden at build time via ldflags:
// go build -ldflags="-X github.com/teradata-labs/llmbatch/internal/version.Version=vX.Y.Z"
var Version = "0.1.0"

// Get returns the current version, or "dev" if unset.
func Get() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
