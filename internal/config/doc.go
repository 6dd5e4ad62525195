// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads the epgmerged settings.
//
// Values come from built-in defaults, then the YAML file, then EPGMERGE_*
// environment variables. Unknown YAML keys are an error.
package config
