// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/pinmap/pinmap/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
